package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends invitations through Amazon SES.
type EmailChannel struct {
	client     sesAPI
	sender     string
	signingURL string
}

// NewEmailChannel creates an SES channel. signingURL is a format string
// receiving the slot token.
func NewEmailChannel(cfg aws.Config, sender, signingURL string) *EmailChannel {
	return &EmailChannel{
		client:     sesv2.NewFromConfig(cfg),
		sender:     sender,
		signingURL: signingURL,
	}
}

func (c *EmailChannel) SendInvitation(ctx context.Context, inv Invitation) error {
	subject, body := c.render(inv)
	_, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.sender),
		Destination:      &types.Destination{ToAddresses: []string{inv.SignerEmail}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", inv.SignerEmail, err)
	}
	return nil
}

func (c *EmailChannel) render(inv Invitation) (string, string) {
	subject := fmt.Sprintf("Signature requested: %s", inv.DocumentName)
	if inv.Reminder {
		subject = "Reminder: " + subject
	}

	var b strings.Builder
	name := inv.SignerName
	if name == "" {
		name = inv.SignerEmail
	}
	fmt.Fprintf(&b, "Hello %s,\n\nYou have been asked to sign %q.\n\n", name, inv.DocumentName)
	fmt.Fprintf(&b, "Open the following link to review and sign:\n%s\n", fmt.Sprintf(c.signingURL, inv.Token))
	if inv.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nThis request expires on %s.\n", inv.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return subject, b.String()
}
