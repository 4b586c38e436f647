package errcoll_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/hostsguard/hostsguard/internal/errcoll"
	"github.com/stretchr/testify/assert"
)

func TestWriterErrorCollector(t *testing.T) {
	buf := &bytes.Buffer{}
	c := errcoll.NewWriterErrorCollector(buf)
	c.Collect(context.Background(), errors.Error("test error"))

	assert.Regexp(t, `^.+: caught error: test error\n$`, buf.String())
}
