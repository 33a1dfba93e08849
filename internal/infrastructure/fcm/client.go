package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"perp-autotrader/internal/domain"
)

const channelID = "autotrader_alerts"

type Config struct {
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json"`
}

func (c Config) Enabled() bool {
	return c.CredentialsFile != "" || c.CredentialsJSON != ""
}

// multicaster is the part of *messaging.Client the sender needs.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client pushes notifications to every registered device token.
type Client struct {
	client multicaster
	tokens domain.TokenRepository
	log    zerolog.Logger
}

// NewClient initializes Firebase Cloud Messaging. Without credentials it returns a
// disabled client whose Send is a no-op.
func NewClient(ctx context.Context, cfg Config, tokens domain.TokenRepository, log zerolog.Logger) (*Client, error) {
	c := &Client{tokens: tokens, log: log.With().Str("component", "fcm").Logger()}
	if !cfg.Enabled() {
		c.log.Warn().Msg("no Firebase credentials found, push disabled")
		return c, nil
	}

	opt := option.WithCredentialsFile(cfg.CredentialsFile)
	if cfg.CredentialsJSON != "" {
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	}
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	c.client = client
	c.log.Info().Msg("Firebase Cloud Messaging initialized")
	return c, nil
}

func (c *Client) Name() string { return "fcm" }

// IsEnabled returns true if FCM client is initialized
func (c *Client) IsEnabled() bool {
	return c.client != nil
}

// Send delivers n to all registered devices. Tokens Firebase reports as unregistered are
// dropped from the repository.
func (c *Client) Send(ctx context.Context, n domain.Notification) error {
	if c.client == nil || c.tokens == nil {
		return nil
	}
	tokens := c.tokens.GetAllTokens()
	if len(tokens) == 0 {
		return nil
	}

	title := n.Title
	if title == "" {
		title = "Autotrader"
	}
	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: channelID,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast: %w", err)
	}

	for i, r := range response.Responses {
		if r != nil && !r.Success && messaging.IsUnregistered(r.Error) && i < len(tokens) {
			c.tokens.UnregisterToken(tokens[i])
		}
	}
	c.log.Debug().Int("success", response.SuccessCount).Int("failure", response.FailureCount).Str("kind", n.Kind).Msg("push sent")
	if response.SuccessCount == 0 && response.FailureCount > 0 {
		return fmt.Errorf("push failed for all %d devices", response.FailureCount)
	}
	return nil
}
