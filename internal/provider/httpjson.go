// Package provider は相場データプロバイダのアダプタに共通するHTTP処理を提供する。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/stockfolio/internal/quote"
)

// maxResponseSize は上流レスポンスの最大サイズ（5MB）。
const maxResponseSize = 5 << 20

// userAgent は上流へのリクエストに付与するUser-Agent。
const userAgent = "stockfolio/1.0"

// Client はアダプタが使うHTTPクライアントの薄いラッパー。
type Client struct {
	Name string
	HTTP *http.Client
}

// NewClient は新しいClientを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
func NewClient(name string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Name: name, HTTP: httpClient}
}

// GetJSON はrawURLにGETリクエストを送り、200の本文をoutにデコードする。
// 数値はjson.Numberとして保持される。
// 200以外のステータスはquote.ClassifyHTTPStatusで分類したエラーを返す。
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.Name, err)
	}
	defer resp.Body.Close()

	if err := quote.ClassifyHTTPStatus(c.Name, resp.StatusCode); err != nil {
		// 接続を再利用できるよう本文を読み捨てる
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return err
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %v: %w", c.Name, err, quote.ErrMalformedResponse)
	}
	return nil
}
