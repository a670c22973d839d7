package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/querycache"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("mutation committed", querycache.Fields{"mutation": "pantry.update"})
	l.Warn("mutation rolled back", querycache.Fields{"mutation": "pantry.update", "err": errors.New("status 500")})

	if len(hook.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hook.Entries))
	}
	last := hook.LastEntry()
	if last.Level != logrus.WarnLevel || last.Message != "mutation rolled back" {
		t.Fatalf("last entry: %v %q", last.Level, last.Message)
	}
	if last.Data["component"] != "querycache" || last.Data["mutation"] != "pantry.update" {
		t.Fatalf("data: %v", last.Data)
	}
	if err, ok := last.Data[logrus.ErrorKey].(error); !ok || err.Error() != "status 500" {
		t.Fatalf("error field: %v", last.Data[logrus.ErrorKey])
	}
}
