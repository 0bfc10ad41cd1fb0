package api

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/lead-relay/internal/attach"
	"github.com/sungwon/lead-relay/internal/backup"
	"github.com/sungwon/lead-relay/internal/config"
	"github.com/sungwon/lead-relay/internal/format"
	"github.com/sungwon/lead-relay/internal/logger"
	"github.com/sungwon/lead-relay/internal/metrics"
	"github.com/sungwon/lead-relay/internal/payload"
	"github.com/sungwon/lead-relay/internal/provider"
)

// SubmissionHandler handles POST /webhooks/submission. It runs the whole
// submission-to-notification pipeline: validate config, parse the
// envelope, render the email, fetch attachments, send, then mirror to
// the backup endpoint.
//
// The caller only ever sees one of four outcomes: 500 (config error,
// before the body is read), 400 (malformed payload, before any side
// effect), 502 (provider rejected the send), or 200.
func SubmissionHandler(
	cfg *config.Config,
	esp provider.Provider,
	fetcher *attach.Fetcher,
	forwarder *backup.Forwarder,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		// Config is checked before the body is touched: a misconfigured
		// deploy must not half-process submissions.
		if err := cfg.Validate(); err != nil || esp == nil {
			if err == nil {
				log.Error().Msg("no email provider configured")
			} else {
				log.Error().Err(err).Msg("required configuration missing")
			}
			metrics.SubmissionsTotal.WithLabelValues("config_error").Inc()
			respondText(w, http.StatusInternalServerError, "configuration error")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read request body")
			metrics.SubmissionsTotal.WithLabelValues("bad_payload").Inc()
			respondText(w, http.StatusBadRequest, "bad payload")
			return
		}

		env, err := payload.Parse(body)
		if err != nil {
			log.Warn().Err(err).Msg("malformed submission payload")
			metrics.SubmissionsTotal.WithLabelValues("bad_payload").Inc()
			respondText(w, http.StatusBadRequest, "bad payload")
			return
		}

		content := format.Build(env.Data, env.Files)

		// Attachment failures degrade to fewer (or zero) attachments;
		// they never abort the send.
		attachments := fetcher.Fetch(r.Context(), env.Files)

		msg := &provider.Message{
			ID:          uuid.New().String(),
			From:        cfg.Mail.Sender,
			To:          cfg.Mail.RecipientList(),
			Subject:     content.Subject,
			TextBody:    content.TextBody,
			HTMLBody:    content.HTMLBody,
			Attachments: attachments,
		}

		start := time.Now()
		result, sendErr := esp.Send(r.Context(), msg)
		metrics.ProviderSendDuration.
			WithLabelValues(esp.GetName()).
			Observe(time.Since(start).Seconds())

		if sendErr != nil {
			log.Error().Err(sendErr).
				Str("provider", esp.GetName()).
				Str("message_id", msg.ID).
				Bool("permanent", provider.IsPermanent(sendErr)).
				Msg("provider send failed")
			metrics.ProviderSendsTotal.WithLabelValues(esp.GetName(), "failed").Inc()
			metrics.SubmissionsTotal.WithLabelValues("provider_error").Inc()
			respondText(w, http.StatusBadGateway, "delivery failed")
			return
		}

		log.Info().
			Str("provider", esp.GetName()).
			Str("message_id", msg.ID).
			Str("provider_message_id", result.ProviderMessageID).
			Int("attachments", len(attachments)).
			Msg("notification delivered")
		metrics.ProviderSendsTotal.WithLabelValues(esp.GetName(), "sent").Inc()
		metrics.SubmissionsTotal.WithLabelValues("sent").Inc()

		// The mirror only fires after a confirmed send, and the response
		// does not wait on it.
		forwarder.ForwardDetached(env.Data, env.FileURLs())

		respondText(w, http.StatusOK, "ok")
	}
}
