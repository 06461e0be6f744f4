package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	return line
}

func TestNewLevelsAndStaticFields(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
	}{
		{"debug", true},
		{" DEBUG ", true},
		{"", false},
		{"verbose", false},
		{"warn", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: tt.level, ServiceName: "community-service", Environment: "staging", Output: &buf})
			l.Debug().Msg("debug line")
			if (buf.Len() > 0) != tt.debugSeen {
				t.Fatalf("debug written = %v, want %v", buf.Len() > 0, tt.debugSeen)
			}
			if !tt.debugSeen {
				return
			}
			line := decode(t, &buf)
			if line[FieldService] != "community-service" || line[FieldEnvironment] != "staging" {
				t.Errorf("line = %v", line)
			}
		})
	}
}

func TestContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Output: &buf}))
	ctx = WithBroadcast(ctx, "b1")

	l := Ctx(ctx)
	l.Info().Msg("hello")
	if line := decode(t, &buf); line[FieldBroadcastID] != "b1" {
		t.Errorf("line = %v", line)
	}

	saved := global
	t.Cleanup(func() { global = saved })
	buf.Reset()
	global = New(Config{Output: &buf})

	conn := Ctx(WithConn("u1", "c1"))
	conn.Info().Msg("connected")
	if line := decode(t, &buf); line[FieldUserID] != "u1" || line[FieldConnID] != "c1" {
		t.Errorf("line = %v", line)
	}
}
