package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"recording-service/dto"
	"recording-service/service"
)

type ServiceDependencies struct {
	Finalizer service.FinalizeService
}

func FinalizeHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.FinalizeMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal finalize message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_id", message.SessionId.String()).
		Msg("received finalize message")

	return deps.Finalizer.ProcessFinalize(ctx, message)
}

func SimpleStoreHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.SimpleStoreMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal simple store message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("call_record_id", message.CallRecordId.String()).
		Msg("received simple store message")

	return deps.Finalizer.ProcessSimpleStore(ctx, message)
}
