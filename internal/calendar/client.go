package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxErrorBody = 4096

// Client Microsoft Graph 日历与邮件客户端，操作 Mailbox 对应的用户
type Client struct {
	baseURL    string
	mailbox    string
	httpClient *http.Client
}

// NewClient 使用 OAuth2 客户端凭据创建 Graph 客户端
// transport 不为 nil 时（如 SOCKS5 代理）所有请求都经由它发出
func NewClient(cfg *config.Graph, transport *http.Transport) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	ctx := context.Background()
	if transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = 60 * time.Second

	return newClientWithHTTP(cfg.BaseURL, cfg.Mailbox, httpClient)
}

func newClientWithHTTP(baseURL, mailbox string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		mailbox:    mailbox,
		httpClient: httpClient,
	}
}

// Mailbox 机器人邮箱地址
func (c *Client) Mailbox() string {
	return c.mailbox
}

type eventsPage struct {
	Value    []Event `json:"value"`
	NextLink string  `json:"@odata.nextLink"`
}

// UpcomingEvents 查询开始时间不早于 from 的日程，自动跟随分页
func (c *Client) UpcomingEvents(ctx context.Context, from time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("start/dateTime ge '%s'", from.UTC().Format(time.RFC3339)))
	next := fmt.Sprintf("%s/users/%s/events?%s", c.baseURL, url.PathEscape(c.mailbox), q.Encode())

	var events []Event
	for next != "" {
		var page eventsPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("查询日程失败: %w", err)
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}

	logger.Debugf("[Calendar] 查询到 %d 个即将开始的日程", len(events))
	return events, nil
}

type sendMailRequest struct {
	Message         Message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// SendMail 以机器人邮箱身份发送邮件
func (c *Client) SendMail(ctx context.Context, msg Message) error {
	endpoint := fmt.Sprintf("%s/users/%s/sendMail", c.baseURL, url.PathEscape(c.mailbox))
	req := sendMailRequest{Message: msg, SaveToSentItems: true}
	if err := c.do(ctx, http.MethodPost, endpoint, req, nil); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("graph %s %s: %s", method, resp.Status, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
