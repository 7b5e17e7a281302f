// Package ses delivers mail.Message values through Amazon SES.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/VilnaCRM-Org/user-service-sub004/mail"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// ErrSendFailed wraps every SES API failure.
var ErrSendFailed = errors.New("ses: send failed")

const charset = "UTF-8"

// API is the subset of the SES client used here.
type API interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Sender implements mail.Sender.
type Sender struct {
	client API
	from   string
}

func NewSender(client API, from string) *Sender {
	return &Sender{client: client, from: from}
}

// NewSenderFromEnv loads the default AWS config chain (env, shared config,
// instance role) for region.
func NewSenderFromEnv(ctx context.Context, region, from string) (*Sender, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return NewSender(ses.NewFromConfig(cfg), from), nil
}

func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String(charset),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String(charset),
				},
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}
