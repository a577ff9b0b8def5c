package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeSchema struct {
	applied []string
	ver     uint
	dirty   bool
	err     error
}

func (f *fakeSchema) schema() schema {
	return schema{
		apply: func(_, direction string) error {
			f.applied = append(f.applied, direction)
			return f.err
		},
		version: func(string) (uint, bool, error) { return f.ver, f.dirty, f.err },
	}
}

func TestRun_Commands(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		wantApplied string
		wantOut     string
	}{
		{"default up", nil, "up", ""},
		{"explicit down", []string{"down"}, "down", ""},
		{"version", []string{"version"}, "", "version=3 dirty=true\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeSchema{ver: 3, dirty: true}
			var out bytes.Buffer
			if err := run(tc.args, "postgres://x", f.schema(), &out, zap.NewNop()); err != nil {
				t.Fatalf("run: %v", err)
			}
			if tc.wantApplied != "" && (len(f.applied) != 1 || f.applied[0] != tc.wantApplied) {
				t.Errorf("applied = %v, want [%s]", f.applied, tc.wantApplied)
			}
			if out.String() != tc.wantOut {
				t.Errorf("out = %q, want %q", out.String(), tc.wantOut)
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		dsn  string
		want string
	}{
		{"missing dsn", nil, "", "DATABASE_URL"},
		{"unknown command", []string{"sideways"}, "postgres://x", "unknown command"},
		{"too many args", []string{"up", "down"}, "postgres://x", "usage"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeSchema{}
			err := run(tc.args, tc.dsn, f.schema(), &bytes.Buffer{}, zap.NewNop())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
			if len(f.applied) != 0 {
				t.Errorf("nothing should be applied, got %v", f.applied)
			}
		})
	}

	boom := errors.New("boom")
	f := &fakeSchema{err: boom}
	if err := run(nil, "postgres://x", f.schema(), &bytes.Buffer{}, zap.NewNop()); !errors.Is(err, boom) {
		t.Errorf("apply failure: got %v", err)
	}
}
