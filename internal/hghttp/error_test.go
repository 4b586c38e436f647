package hghttp_test

import (
	"net/http"
	"testing"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/hostsguard/hostsguard/internal/hghttp"
	"github.com/stretchr/testify/assert"
)

func TestCheckSuccess(t *testing.T) {
	testCases := []struct {
		name       string
		srv        string
		wantErrMsg string
		got        int
	}{{
		name:       "ok",
		srv:        testSrv,
		wantErrMsg: "",
		got:        http.StatusOK,
	}, {
		name:       "no_content",
		srv:        testSrv,
		wantErrMsg: "",
		got:        http.StatusNoContent,
	}, {
		name:       "not_found",
		srv:        "",
		wantErrMsg: `server "": status code error: expected 2xx, got 404`,
		got:        http.StatusNotFound,
	}, {
		name:       "redirect_srv",
		srv:        testSrv,
		wantErrMsg: `server "` + testSrv + `": status code error: expected 2xx, got 304`,
		got:        http.StatusNotModified,
	}, {
		name:       "server_error",
		srv:        testSrv,
		wantErrMsg: `server "` + testSrv + `": status code error: expected 2xx, got 500`,
		got:        http.StatusInternalServerError,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tc.got,
				Header: http.Header{
					httphdr.Server: []string{tc.srv},
				},
			}
			err := hghttp.CheckSuccess(resp)

			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}

func TestServerError(t *testing.T) {
	testCases := []struct {
		err        error
		name       string
		srv        string
		wantErrMsg string
	}{{
		err:        testError,
		name:       "no_srv",
		srv:        "",
		wantErrMsg: `server "": ` + string(testError),
	}, {
		err:        testError,
		name:       "with_srv",
		srv:        testSrv,
		wantErrMsg: `server "` + testSrv + `": ` + string(testError),
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{
					httphdr.Server: []string{tc.srv},
				},
			}
			err := hghttp.WrapServerError(tc.err, resp)

			assert.ErrorIs(t, err, tc.err)
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}
