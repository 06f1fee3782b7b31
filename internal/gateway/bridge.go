package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/group-enroller/internal/domain"
)

const defaultBridgeTimeout = 30 * time.Second

var (
	_ Gateway        = (*BridgeClient)(nil)
	_ SessionStarter = (*BridgeClient)(nil)
)

type startSessionRequest struct {
	WebhookURL string `json:"webhookUrl"`
}

type identityResponse struct {
	ID *string `json:"id"`
}

type createGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type createGroupResponse struct {
	ID string `json:"id"`
}

type groupResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	MemberCount       int      `json:"memberCount"`
	Admins            []string `json:"admins"`
	PostingRestricted bool     `json:"messagesAdminsOnly"`
	InfoRestricted    bool     `json:"infoAdminsOnly"`
}

type participantsRequest struct {
	Participants     []string `json:"participants"`
	AutoSendInviteV4 *bool    `json:"autoSendInviteV4,omitempty"`
}

type addParticipantsResponse struct {
	Results map[string]AddResult `json:"results"`
}

type settingRequest struct {
	Enabled bool `json:"enabled"`
}

type inviteRequest struct {
	Participant string `json:"participant"`
}

type bridgeErrorResponse struct {
	Error string `json:"error"`
}

// BridgeClient talks to a WhatsApp bridge sidecar over HTTP. One client
// drives exactly one session, named after the account.
type BridgeClient struct {
	client  *resty.Client
	session string
}

func NewBridgeClient(baseURL string, session string, timeout time.Duration) (*BridgeClient, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	client.SetTimeout(timeout)

	return NewBridgeClientWithClient(baseURL, session, client)
}

func NewBridgeClientWithClient(baseURL string, session string, client *resty.Client) (*BridgeClient, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid bridge url: %w", err)
	}
	if strings.TrimSpace(session) == "" {
		return nil, fmt.Errorf("bridge session is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultBridgeTimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(trimmedURL)
	client.SetHeader("Content-Type", "application/json")

	return &BridgeClient{
		client:  client,
		session: strings.TrimSpace(session),
	}, nil
}

func (b *BridgeClient) StartSession(ctx context.Context, webhookURL string) error {
	_, err := b.do(ctx, OpStartSession, http.MethodPost, "/sessions/{session}/start", nil,
		startSessionRequest{WebhookURL: webhookURL}, nil)
	return err
}

func (b *BridgeClient) ResolveIdentity(ctx context.Context, phone string) (string, bool, error) {
	var out identityResponse
	status, err := b.do(ctx, OpResolveIdentity, http.MethodGet, "/sessions/{session}/contacts/{phone}/id",
		map[string]string{"phone": phone}, nil, &out, http.StatusNotFound)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound || out.ID == nil || strings.TrimSpace(*out.ID) == "" {
		return "", false, nil
	}
	return *out.ID, true, nil
}

func (b *BridgeClient) AddParticipants(ctx context.Context, groupID string, phones []string, opts AddOptions) (map[string]AddResult, error) {
	autoInvite := opts.AutoSendInvite
	var out addParticipantsResponse
	_, err := b.do(ctx, OpAddParticipants, http.MethodPost, "/sessions/{session}/groups/{groupId}/participants/add",
		map[string]string{"groupId": groupID},
		participantsRequest{Participants: phones, AutoSendInviteV4: &autoInvite}, &out)
	if err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = map[string]AddResult{}
	}
	return out.Results, nil
}

func (b *BridgeClient) SendInvite(ctx context.Context, groupID string, phone string) error {
	_, err := b.do(ctx, OpSendInvite, http.MethodPost, "/sessions/{session}/groups/{groupId}/invites",
		map[string]string{"groupId": groupID}, inviteRequest{Participant: phone}, nil)
	return err
}

func (b *BridgeClient) CreateGroup(ctx context.Context, name string, participants []string) (string, error) {
	var out createGroupResponse
	_, err := b.do(ctx, OpCreateGroup, http.MethodPost, "/sessions/{session}/groups", nil,
		createGroupRequest{Name: name, Participants: participants}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", &GatewayError{Op: OpCreateGroup, Message: "bridge returned empty group id"}
	}
	return out.ID, nil
}

func (b *BridgeClient) Promote(ctx context.Context, groupID string, phones []string) error {
	_, err := b.do(ctx, OpPromote, http.MethodPost, "/sessions/{session}/groups/{groupId}/participants/promote",
		map[string]string{"groupId": groupID}, participantsRequest{Participants: phones}, nil)
	return err
}

func (b *BridgeClient) RestrictPosting(ctx context.Context, groupID string, adminsOnly bool) error {
	_, err := b.do(ctx, OpRestrictPosting, http.MethodPut, "/sessions/{session}/groups/{groupId}/settings/messages-admins-only",
		map[string]string{"groupId": groupID}, settingRequest{Enabled: adminsOnly}, nil)
	return err
}

func (b *BridgeClient) RestrictInfoEdit(ctx context.Context, groupID string, adminsOnly bool) error {
	_, err := b.do(ctx, OpRestrictInfoEdit, http.MethodPut, "/sessions/{session}/groups/{groupId}/settings/info-admins-only",
		map[string]string{"groupId": groupID}, settingRequest{Enabled: adminsOnly}, nil)
	return err
}

func (b *BridgeClient) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	var out groupResponse
	_, err := b.do(ctx, OpGetGroup, http.MethodGet, "/sessions/{session}/groups/{groupId}",
		map[string]string{"groupId": groupID}, nil, &out)
	if err != nil {
		return nil, err
	}

	id := out.ID
	if id == "" {
		id = groupID
	}
	return &domain.Group{
		ID:                id,
		Name:              out.Name,
		MemberCount:       out.MemberCount,
		Admins:            out.Admins,
		PostingRestricted: out.PostingRestricted,
		InfoRestricted:    out.InfoRestricted,
	}, nil
}

// do executes one bridge call. Statuses listed in accept are returned to the
// caller instead of being turned into errors.
func (b *BridgeClient) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	pathParams map[string]string,
	body any,
	out any,
	accept ...int,
) (int, error) {
	if b == nil || b.client == nil {
		return 0, fmt.Errorf("bridge client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := b.client.R().
		SetContext(ctx).
		SetPathParam("session", b.session).
		SetError(&bridgeErrorResponse{})
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	response, err := req.Execute(method, path)
	if err != nil {
		return 0, &GatewayError{
			Op:        op,
			Message:   "bridge request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return 0, &GatewayError{Op: op, Message: "bridge returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return statusCode, nil
	}
	for _, code := range accept {
		if statusCode == code {
			return statusCode, nil
		}
	}

	return statusCode, &GatewayError{
		Op:         op,
		StatusCode: statusCode,
		Message:    bridgeErrorMessage(statusCode, response),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func bridgeErrorMessage(statusCode int, response *resty.Response) string {
	if payload, ok := response.Error().(*bridgeErrorResponse); ok && payload != nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
	}

	base := fmt.Sprintf("bridge returned status %d", statusCode)
	body := strings.TrimSpace(response.String())
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
