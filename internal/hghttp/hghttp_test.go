package hghttp_test

import "github.com/AdguardTeam/golibs/errors"

// testSrv is the common Server header value for tests.
const testSrv = "testServer/1.0"

// testError is the common error for tests.
const testError errors.Error = "test error"
