package notification

import (
	"context"
	"io"
	stdlog "log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/privacy"
)

// ShoutrrrProvider sends via nicholas-fedor/shoutrrr. One router serves
// every configured URL.
type ShoutrrrProvider struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrProvider validates urls and builds the sender.
func NewShoutrrrProvider(urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// Service URLs carry tokens
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("urls", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))

	return &ShoutrrrProvider{urls: slices.Clone(urls), sender: sender}, nil
}

// GetName implements Provider.
func (s *ShoutrrrProvider) GetName() string { return "shoutrrr" }

// Send implements Provider. The router applies its own timeout.
func (s *ShoutrrrProvider) Send(_ context.Context, n *Notification) error {
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}

	var errs []error
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			errs = append(errs, privacy.WrapError(err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("failed_services", len(errs)).
		Build()
}
