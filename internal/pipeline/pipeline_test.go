package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/inference"
	"github.com/koustreak/stagegen/internal/logger"
)

const ordersSchema = `
tables:
  - name: ORDERS
    primary_key: [ORDER_ID]
    foreign_keys:
      - column: CUSTOMER_ID
        references: {table: CUSTOMERS, column: CUSTOMER_ID}
  - name: CUSTOMERS
    primary_key: [CUSTOMER_ID]
`

func ordersInput() Input {
	return Input{
		Extracts: []catalog.Extract{
			{FileName: "STG_ORDERS.csv", Columns: []string{"ORDER_ID", "CUSTOMER_ID", "AMOUNT", "CREATED_AT"}},
			{FileName: "customers.csv", Columns: []string{"CUSTOMER_ID", "NAME"}},
			{FileName: "products.csv", Columns: []string{"PRODUCTS_ID", "SKU", "LOAD_DATE"}},
		},
		Schema: []byte(ordersSchema),
	}
}

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	g, err := New(opts, logger.Nop())
	require.NoError(t, err)
	return g
}

func TestGenerate_OrdersScenario(t *testing.T) {
	tests := []struct {
		name        string
		extra       []string
		wantPayload []string
	}{
		{name: "CREATED_AT is payload by default", wantPayload: []string{"CUSTOMER_ID", "AMOUNT", "CREATED_AT"}},
		{name: "CREATED_AT reserved", extra: []string{"CREATED_AT"}, wantPayload: []string{"CUSTOMER_ID", "AMOUNT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Reserved.Extra = tt.extra

			b, err := newGenerator(t, opts).Generate(context.Background(), ordersInput())
			require.NoError(t, err)
			require.Equal(t, 3, b.Len())

			assert.Equal(t, "v_stg_orders.sql", b.Files[0].FileName)
			assert.Equal(t, "v_stg_customers.sql", b.Files[1].FileName)
			assert.Equal(t, "v_stg_products.sql", b.Files[2].FileName)

			orders, ok := b.Table("ORDERS")
			require.True(t, ok)
			assert.Equal(t, tt.wantPayload, orders.Payload)

			f, _ := b.File("ORDERS")
			assert.Contains(t, f.Content, `"STG_ORDERS"`)
			assert.Contains(t, f.Content, `"ORDERS_HK"`)
			assert.Contains(t, f.Content, `"ORDERS_HASHDIFF"`)
			assert.Contains(t, f.Content, payloadBlock(tt.wantPayload))
		})
	}
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		check func(error) bool
	}{
		{
			name:  "default key missing",
			input: Input{Extracts: []catalog.Extract{{FileName: "customers.csv", Columns: []string{"CUSTOMER_ID", "NAME"}}}},
			check: errs.IsMissingKeyColumn,
		},
		{
			name:  "empty input",
			input: Input{Schema: []byte(ordersSchema)},
			check: errs.IsEmptyInput,
		},
		{
			name: "reference to table without extract",
			input: Input{
				Extracts: []catalog.Extract{{FileName: "STG_ORDERS.csv", Columns: []string{"ORDER_ID", "VENDOR_ID"}}},
				Schema: []byte(`
tables:
  - name: ORDERS
    primary_key: ORDER_ID
    foreignKeys:
      - {column: VENDOR_ID, referencesTable: VENDORS, referencesColumn: VENDOR_ID}
`),
			},
			check: errs.IsReferentialIntegrity,
		},
		{
			name: "name collision",
			input: Input{Extracts: []catalog.Extract{
				{FileName: "STG_orders.csv", Columns: []string{"ORDERS_ID"}},
				{FileName: "orders.csv", Columns: []string{"ORDERS_ID"}},
			}},
			check: errs.IsNameCollision,
		},
		{
			name:  "malformed schema",
			input: Input{Extracts: ordersInput().Extracts, Schema: []byte("tables: [")},
			check: errs.IsSchemaParse,
		},
	}

	g := newGenerator(t, DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := g.Generate(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			md, err := g.Analyze(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, md)
			assert.True(t, tt.check(err))
		})
	}
}

func TestGenerate_JoinsErrorsInCatalogOrder(t *testing.T) {
	in := Input{
		Extracts: []catalog.Extract{
			{FileName: "a.csv", Columns: []string{"A_ID", "X_ID"}},
			{FileName: "b.csv", Columns: []string{"B_ID"}},
			{FileName: "c.csv", Columns: []string{"C_ID", "Y_ID"}},
		},
		Schema: []byte(`
tables:
  - name: A
    foreign_keys: [{column: X_ID, references: {table: X, column: X_ID}}]
  - name: C
    foreign_keys: [{column: Y_ID, references: {table: Y, column: Y_ID}}]
`),
	}

	opts := DefaultOptions()
	opts.Workers = 3
	_, err := newGenerator(t, opts).Generate(context.Background(), in)
	require.Error(t, err)

	all := errs.All(err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Table)
	assert.Equal(t, "C", all[1].Table)
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Workers = 4
	g := newGenerator(t, opts)

	first, err := g.Generate(context.Background(), ordersInput())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := g.Generate(context.Background(), ordersInput())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGenerate_PermutationInvariance(t *testing.T) {
	g := newGenerator(t, DefaultOptions())

	in := ordersInput()
	base, err := g.Generate(context.Background(), in)
	require.NoError(t, err)

	reversed := in
	reversed.Extracts = []catalog.Extract{in.Extracts[2], in.Extracts[0], in.Extracts[1]}
	perm, err := g.Generate(context.Background(), reversed)
	require.NoError(t, err)

	want := []string{"PRODUCTS", "ORDERS", "CUSTOMERS"}
	for i, table := range want {
		assert.Equal(t, table, perm.Tables[i].TableName)
		f, ok := base.File(table)
		require.True(t, ok)
		assert.Equal(t, f, perm.Files[i], "content of %s changed under permutation", table)
	}
}

func TestGenerate_ManyTablesKeepOrder(t *testing.T) {
	var extracts []catalog.Extract
	for i := 0; i < 64; i++ {
		name := fmt.Sprintf("T%02d", i)
		extracts = append(extracts, catalog.Extract{
			FileName: strings.ToLower(name) + ".csv",
			Columns:  []string{name + "_ID", "VALUE"},
		})
	}

	opts := DefaultOptions()
	opts.Workers = 8
	b, err := newGenerator(t, opts).Generate(context.Background(), Input{Extracts: extracts})
	require.NoError(t, err)
	require.Equal(t, 64, b.Len())
	for i, md := range b.Tables {
		assert.Equal(t, fmt.Sprintf("T%02d", i), md.TableName)
		assert.Equal(t, fmt.Sprintf("v_stg_t%02d.sql", i), b.Files[i].FileName)
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := newGenerator(t, DefaultOptions()).Generate(ctx, ordersInput())
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errs.IsCanceled(err))
	assert.False(t, errs.IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := newGenerator(t, DefaultOptions()).Generate(ctx, ordersInput())
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze(t *testing.T) {
	md, err := newGenerator(t, DefaultOptions()).Analyze(context.Background(), ordersInput())
	require.NoError(t, err)
	require.Len(t, md, 3)

	assert.Equal(t, inference.TableMetadata{
		TableName:  "ORDERS",
		PrimaryKey: []string{"ORDER_ID"},
		ForeignKeys: []inference.ForeignKey{{
			Column:     "CUSTOMER_ID",
			References: inference.Reference{Table: "CUSTOMERS", Column: "CUSTOMER_ID"},
		}},
		Columns: []string{"ORDER_ID", "CUSTOMER_ID", "AMOUNT", "CREATED_AT"},
		Payload: []string{"CUSTOMER_ID", "AMOUNT", "CREATED_AT"},
	}, md[0])
	assert.Equal(t, []string{"SKU"}, md[2].Payload)
}

func TestGenerate_LogsRequestAndUnmatchedDeclarations(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf})

	g, err := New(DefaultOptions(), log)
	require.NoError(t, err)

	in := ordersInput()
	in.Schema = append(in.Schema, []byte("  - name: VENDORS\n")...)

	ctx := WithRequestID(context.Background(), "req-123")
	_, err = g.Generate(ctx, in)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-123"`)
	assert.Contains(t, out, `"table":"VENDORS"`)
	assert.Contains(t, out, "generation finished")
}

func TestNew_RejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Materialization = "view; drop"
	_, err := New(opts, nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	opts = DefaultOptions()
	opts.Reserved.Extra = []string{"LOAD_DATE"}
	_, err = New(opts, nil)
	require.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "zero workers means per CPU", mutate: func(o *Options) { o.Workers = 0 }},
		{name: "empty materialization", mutate: func(o *Options) { o.Materialization = "" }},
		{name: "negative workers", mutate: func(o *Options) { o.Workers = -1 }, wantErr: true},
		{name: "bad materialization", mutate: func(o *Options) { o.Materialization = "a view" }, wantErr: true},
		{name: "empty reserved name", mutate: func(o *Options) { o.Reserved.RecordSource = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func payloadBlock(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `    "` + c + `"`
	}
	return "{%- set src_payload = [\n" + strings.Join(quoted, ",\n") + "\n] -%}"
}
