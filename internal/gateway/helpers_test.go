package gateway

import (
	"io"
	"net/http"
	"net/url"
)

func httpGet(u string) (string, error) {
	resp, err := http.Get(u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func urlEncode(s string) string {
	return url.QueryEscape(s)
}
