package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/goliatone/go-repository-mirror/logging"
)

func TestLogger_ForwardsEntries(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("initial load complete", logging.Fields{"entries": 3})
	l.Warn("reconcile failed", nil)

	if len(hook.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hook.Entries))
	}
	first := hook.Entries[0]
	if first.Level != logrus.InfoLevel || first.Message != "initial load complete" || first.Data["entries"] != 3 {
		t.Errorf("unexpected first entry %+v", first)
	}
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("expected warn level, got %v", hook.LastEntry().Level)
	}
}
