package dashapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	resp := func(status int) *http.Response {
		return &http.Response{StatusCode: status, Status: http.StatusText(status)}
	}

	tests := []struct {
		name        string
		resp        *http.Response
		body        string
		transport   error
		kind        Kind
		message     string
		status      int
		code        string
		recoverable bool
	}{
		{"TransportFailure", nil, "", errors.New("connection refused"), KindNetwork, MsgUnreachable, 0, "", true},
		{"NotFoundNoBody", resp(404), "", nil, KindHTTPClient, MsgNotFound, 404, "", false},
		{"NotFoundWithMessage", resp(404), `{"error":true,"message":"Dataset not found"}`, nil, KindHTTPClient, "Dataset not found", 404, "", false},
		{"BadRequestCode", resp(400), `{"message":"registry_name required","code":"missing_field"}`, nil, KindHTTPClient, "registry_name required", 400, "missing_field", false},
		{"BadRequestNumericCode", resp(422), `{"message":"Age out of range","code":422}`, nil, KindHTTPClient, "Age out of range", 422, "422", false},
		{"ClientNoMessage", resp(409), `not json`, nil, KindHTTPClient, "Conflict", 409, "", false},
		{"ServerError", resp(500), `{"error":true,"message":"boom"}`, nil, KindHTTPServer, MsgServerError, 500, "", true},
		{"GatewayTimeout", resp(504), "", nil, KindHTTPServer, MsgServerError, 504, "", true},
		{"Redirect", resp(302), "", nil, KindHTTPOther, "Found", 302, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			ce := Classify(tt.resp, body, tt.transport)
			require.NotNil(t, ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.message, ce.Message)
			assert.Equal(t, tt.status, ce.StatusCode)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.recoverable, ce.Recoverable())
		})
	}
}

func TestClassifyKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	ce := Classify(nil, nil, cause)
	assert.ErrorIs(t, ce, cause)

	srv := Classify(&http.Response{StatusCode: 500}, []byte(`{"message":"model not loaded"}`), nil)
	require.Error(t, srv.Err)
	assert.Contains(t, srv.Error(), "model not loaded")
}

func TestExhaustedWrapsLastAttempt(t *testing.T) {
	last := Classify(&http.Response{StatusCode: 503}, nil, nil)
	ce := exhausted(last)

	assert.Equal(t, KindNetwork, ce.Kind)
	assert.Equal(t, MsgRetriesExhausted, ce.Message)
	assert.Zero(t, ce.StatusCode)

	var cause *ClassifiedError
	require.True(t, errors.As(ce.Unwrap(), &cause))
	assert.Equal(t, KindHTTPServer, cause.Kind)
	assert.Equal(t, 503, cause.StatusCode)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "http_client", KindHTTPClient.String())
	assert.Equal(t, "http_server", KindHTTPServer.String())
	assert.Equal(t, "http_other", KindHTTPOther.String())
}
