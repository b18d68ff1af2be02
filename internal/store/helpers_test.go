// helpers_test.go — table-driven tests for QueryBuilder + mustMarshalJSON.
package store

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestQueryBuilderEq(t *testing.T) {
	t.Run("skips_empty", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.Eq("status", "")
		clause := qb.WhereClause()
		if clause != "" {
			t.Errorf("expected empty WHERE, got %q", clause)
		}
	})

	t.Run("adds_condition", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.Eq("status", "active")
		clause := qb.WhereClause()
		if !strings.Contains(clause, "status = ?") {
			t.Errorf("expected 'status = ?' in WHERE, got %q", clause)
		}
		params := qb.Params()
		if len(params) != 1 || params[0] != "active" {
			t.Errorf("expected params [active], got %v", params)
		}
	})

	t.Run("multiple_conditions", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.Eq("status", "active").Eq("agent_ip", "10.0.0.5")
		clause := qb.WhereClause()
		if !strings.Contains(clause, "status = ?") || !strings.Contains(clause, "agent_ip = ?") {
			t.Errorf("expected both conditions, got %q", clause)
		}
	})
}

func TestQueryBuilderKeywordLike(t *testing.T) {
	t.Run("ESCAPE_clause", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.KeywordLike("test", "filename")
		clause := qb.WhereClause()
		if !strings.Contains(clause, `ESCAPE '\'`) {
			t.Errorf("expected ESCAPE clause, got %q", clause)
		}
	})

	t.Run("escapes_percent", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.KeywordLike("100%", "filename")
		params := qb.Params()
		if len(params) != 1 {
			t.Fatalf("expected 1 param, got %d", len(params))
		}
		p := params[0].(string)
		if !strings.Contains(p, `100\%`) {
			t.Errorf("expected escaped percent in param, got %q", p)
		}
	})

	t.Run("skips_empty_keyword", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.KeywordLike("", "filename")
		clause := qb.WhereClause()
		if clause != "" {
			t.Errorf("expected empty WHERE for empty keyword, got %q", clause)
		}
	})

	t.Run("multi_column", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.KeywordLike("test", "filename", "path")
		clause := qb.WhereClause()
		if !strings.Contains(clause, "LOWER(COALESCE(filename") || !strings.Contains(clause, "LOWER(COALESCE(path") {
			t.Errorf("expected both columns in LIKE, got %q", clause)
		}
		if !strings.Contains(clause, " OR ") {
			t.Errorf("expected OR between columns, got %q", clause)
		}
	})
}

func TestQueryBuilderBuild(t *testing.T) {
	t.Run("limit_clamped_zero", func(t *testing.T) {
		qb := NewQueryBuilder()
		sql, params := qb.Build("SELECT * FROM t", "", 0)
		if !strings.Contains(sql, "LIMIT ?") {
			t.Errorf("expected LIMIT clause, got %q", sql)
		}
		if params[len(params)-1] != 1 {
			t.Errorf("expected limit=1, got %v", params[len(params)-1])
		}
	})

	t.Run("limit_clamped_high", func(t *testing.T) {
		qb := NewQueryBuilder()
		_, params := qb.Build("SELECT * FROM t", "", 9999)
		if params[len(params)-1] != 2000 {
			t.Errorf("expected limit=2000, got %v", params[len(params)-1])
		}
	})

	t.Run("full_query", func(t *testing.T) {
		qb := NewQueryBuilder()
		qb.Eq("status", "active")
		sql, params := qb.Build("SELECT * FROM t", "created_at DESC", 10)
		if !strings.Contains(sql, "WHERE status = ?") {
			t.Errorf("expected WHERE clause, got %q", sql)
		}
		if !strings.Contains(sql, "ORDER BY created_at DESC") {
			t.Errorf("expected ORDER BY clause, got %q", sql)
		}
		if !strings.Contains(sql, "LIMIT ?") {
			t.Errorf("expected LIMIT ?, got %q", sql)
		}
		if len(params) != 2 || params[0] != "active" || params[1] != 10 {
			t.Errorf("expected params [active, 10], got %v", params)
		}
	})
}

// TestMustMarshalJSON verifies mustMarshalJSON's safe-marshal behavior.
func TestMustMarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		wantJSON string
	}{
		{
			name:     "normal_map",
			input:    map[string]any{"key": "value", "n": 42},
			wantJSON: `{"key":"value","n":42}`,
		},
		{
			name:     "nil_input",
			input:    nil,
			wantJSON: `null`,
		},
		{
			name:     "string_slice",
			input:    []string{"a", "b"},
			wantJSON: `["a","b"]`,
		},
		{
			name:     "empty_map",
			input:    map[string]any{},
			wantJSON: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustMarshalJSON(tt.input)

			if !json.Valid(got) {
				t.Fatalf("mustMarshalJSON returned invalid JSON: %q", got)
			}

			var gotVal, wantVal any
			if err := json.Unmarshal(got, &gotVal); err != nil {
				t.Fatalf("unmarshal got: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.wantJSON), &wantVal); err != nil {
				t.Fatalf("unmarshal want: %v", err)
			}

			gotRe, _ := json.Marshal(gotVal)
			wantRe, _ := json.Marshal(wantVal)
			if string(gotRe) != string(wantRe) {
				t.Errorf("mustMarshalJSON(%v) = %s, want %s", tt.input, got, tt.wantJSON)
			}
		})
	}
}

// TestMustMarshalJSON_Unmarshalable verifies the "{}" fallback for
// unmarshalable input.
func TestMustMarshalJSON_Unmarshalable(t *testing.T) {
	ch := make(chan int)
	got := mustMarshalJSON(ch)

	if string(got) != "{}" {
		t.Errorf("mustMarshalJSON(chan) = %s, want {}", got)
	}
}
