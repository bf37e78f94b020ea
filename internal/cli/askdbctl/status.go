package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Status prints /v1/health and /v1/ready of the API at baseURL and returns
// the process exit code: 0 when both succeed, 1 otherwise.
func Status(ctx context.Context, client *http.Client, baseURL, apiKey string, stdout, stderr io.Writer) int {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	code := 0
	for _, path := range []string{"/v1/health", "/v1/ready"} {
		status, body, err := doRequest(ctx, client, http.MethodGet, baseURL+path, strings.TrimSpace(apiKey), nil)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%s %s: request failed: %v\n", failMark, path, err)
			code = 1
			continue
		}
		if status >= 400 {
			_, _ = fmt.Fprintf(stderr, "%s %s: http %d: %s\n", failMark, path, status, strings.TrimSpace(string(body)))
			code = 1
			continue
		}
		if pretty, ok := prettyJSON(body); ok {
			_, _ = fmt.Fprintf(stdout, "%s %s\n%s\n", successMark, path, pretty)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%s %s\n%s\n", successMark, path, strings.TrimSpace(string(body)))
	}
	return code
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}
