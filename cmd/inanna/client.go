package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func getDefaultAddr() string {
	if addr := os.Getenv("INANNA_ADDR"); addr != "" {
		return addr
	}
	return "http://localhost:9108"
}

func fetch(u string, params url.Values) ([]byte, error) {
	return do(http.MethodGet, u, params)
}

func do(method, u string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

func outputJSON(w io.Writer, data []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
