package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Bot API client covering the calls the tutor needs:
// message/voice delivery, voice clip retrieval and webhook registration.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	_, err := c.call(ctx, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	return err
}

// SendVoice uploads an OggOpus file as a voice note.
func (c *Client) SendVoice(ctx context.Context, chatID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open voice file: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	part, err := mw.CreateFormFile("voice", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create voice part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy voice bytes: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	_, err = c.call(ctx, "sendVoice", mw.FormDataContentType(), strings.NewReader(body.String()))
	return err
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	form := url.Values{}
	form.Set("file_id", fileID)
	raw, err := c.call(ctx, "getFile", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("decode getFile result: %w", err)
	}
	return f, nil
}

// Download fetches a file's bytes given the file_path from GetFile.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	u := c.baseURL + "/file/bot" + c.token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL string) error {
	form := url.Values{}
	form.Set("url", webhookURL)
	_, err := c.call(ctx, "setWebhook", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	return err
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) (json.RawMessage, error) {
	u := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("%s: api error: %s", method, out.Description)
	}
	return out.Result, nil
}
