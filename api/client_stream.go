// Package api - Stream-basierte Client-Methoden.
// Dieses Modul enthaelt alle Methoden, die NDJSON-Responses verwenden.

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ollama/ddpm/format"
)

// a 256x256x3 image is ~1.5 MB of JSON
const maxBufferSize = 64 * format.MegaByte

func (c *Client) stream(ctx context.Context, method, path string, data any, fn func([]byte) error) error {
	var reqBody *bytes.Buffer
	if data != nil {
		bts, err := json.Marshal(data)
		if err != nil {
			return err
		}

		reqBody = bytes.NewBuffer(bts)
	}

	requestURL := c.base.JoinPath(path)

	var request *http.Request
	var err error
	if reqBody != nil {
		request, err = http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	} else {
		request, err = http.NewRequestWithContext(ctx, method, requestURL.String(), nil)
	}
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/x-ndjson")
	request.Header.Set("User-Agent", userAgent())

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	scanner := bufio.NewScanner(response.Body)
	// increase the buffer size to avoid running out of space
	scanBuf := make([]byte, 0, bufio.MaxScanTokenSize)
	scanner.Buffer(scanBuf, maxBufferSize)
	for scanner.Scan() {
		var errorResponse struct {
			Error string `json:"error,omitempty"`
		}

		bts := scanner.Bytes()
		if err := json.Unmarshal(bts, &errorResponse); err != nil {
			if response.StatusCode >= http.StatusBadRequest {
				return StatusError{
					StatusCode:   response.StatusCode,
					Status:       response.Status,
					ErrorMessage: string(bts),
				}
			}
			return errors.New(string(bts))
		}

		if response.StatusCode >= http.StatusBadRequest {
			return StatusError{
				StatusCode:   response.StatusCode,
				Status:       response.Status,
				ErrorMessage: errorResponse.Error,
			}
		}

		if errorResponse.Error != "" {
			return errors.New(errorResponse.Error)
		}

		if err := fn(bts); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// SampleProgressFunc is a function that [Client.Sample] invokes for every
// step. If this function returns an error, [Client.Sample] stops reading
// and returns this error.
type SampleProgressFunc func(ProgressResponse) error

// Sample runs a complete reverse process on the server. fn receives one
// event per timestep in decreasing step order, ending with step 0.
func (c *Client) Sample(ctx context.Context, req *SampleRequest, fn SampleProgressFunc) error {
	return c.stream(ctx, http.MethodPost, "/api/sample", req, func(bts []byte) error {
		var resp ProgressResponse
		if err := json.Unmarshal(bts, &resp); err != nil {
			return err
		}

		return fn(resp)
	})
}
