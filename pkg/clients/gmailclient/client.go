package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client and sends as a single account
type Client struct {
	service  *gmail.Service
	userID   string
	sender   string
	interval time.Duration

	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client that authenticates with the given token source.
// userID is the Gmail account ("me" for the authorised account) and sender the From address.
func NewClient(ctx context.Context, tokens oauth2.TokenSource, userID, sender string, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(tokens)}, opts...)

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	if userID == "" {
		userID = "me"
	}

	return &Client{
		service:  service,
		userID:   userID,
		sender:   sender,
		interval: EMAIL_INTERVAL,
	}, nil
}
