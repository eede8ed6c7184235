package streampull

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-alertstream/pkg/decoder"
	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// worker is the single background worker. It runs the pipeline for one message
// at a time until the pull's channel closes, nacking whatever is still
// delivered once the run is stopping.
func (c *Controller) worker() {
	defer close(c.workerDone)
	defer c.hs.Close()

	c.logger.Debug().Msg("Worker started.")
	for msg := range c.consumer.Messages() {
		if c.stopping.Load() {
			c.nack(msg, metrics.NackStopping)
			continue
		}
		c.processMessage(c.workerCtx, msg)
	}
	c.logger.Debug().Msg("Consumer channel closed, worker exiting.")
}

// processMessage settles msg with exactly one Ack or Nack.
func (c *Controller) processMessage(ctx context.Context, msg messagepipeline.Message) {
	logger := c.logger.With().Str("msg_id", msg.ID).Logger()

	rec, err := c.hooks.Decoder.Decode(msg.Payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to decode message, Nacking.")
		c.nack(msg, metrics.NackDecode)
		return
	}

	if len(c.hooks.Fields) > 0 {
		rec, err = decoder.Project(rec, c.hooks.Fields)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to project message, Nacking.")
			c.nack(msg, metrics.NackDecode)
			return
		}
	}

	if len(c.hooks.Metadata) > 0 {
		c.attachMetadata(rec, decoder.ExtractMetadata(msg, c.hooks.Metadata))
	}

	res := Accept(rec)
	if c.hooks.Callback != nil {
		res, err = c.invokeCallback(ctx, rec)
		if err != nil {
			logger.Error().Err(err).Msg("Callback failed, Nacking.")
			c.nack(msg, metrics.NackCallback)
			return
		}
	}
	if !res.Ack {
		logger.Debug().Msg("Callback rejected message, Nacking.")
		c.nack(msg, metrics.NackRejected)
		return
	}

	inc := increment{}
	if !res.Exclude {
		result := res.Result
		if result == nil {
			result = rec
		}
		if c.hooks.Sink != nil {
			start := c.now()
			err := c.hooks.Sink.Save(ctx, result)
			c.metrics.RecordSinkSave(sinkName(c.hooks.Sink), c.now().Sub(start), err)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to save record, Nacking.")
				c.nack(msg, metrics.NackSink)
				return
			}
		}
		inc.n = 1
		if c.hooks.Collect {
			inc.result = result
		}
	}

	if err := c.hs.Send(ctx, inc, c.cfg.Bounded()); err != nil {
		logger.Debug().Err(err).Msg("Run stopped before the message was recorded, Nacking.")
		c.nack(msg, metrics.NackAbandoned)
		return
	}

	msg.Ack()
	c.metrics.RecordAck(c.subscription)
}

// invokeCallback runs the user callback, converting an error or a panic into
// an error wrapping types.ErrCallback.
func (c *Controller) invokeCallback(ctx context.Context, rec types.Record) (res CallbackResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", types.ErrCallback, r)
		}
	}()
	res, err = c.hooks.Callback(ctx, rec, c.hooks.Params)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", types.ErrCallback, err)
	}
	return res, nil
}

// attachMetadata nests md under the metadata key without overwriting any field
// the record already has.
func (c *Controller) attachMetadata(rec types.Record, md map[string]string) {
	key := c.hooks.MetadataKey
	existing, present := rec[key]
	if !present {
		group := make(map[string]interface{}, len(md))
		for k, v := range md {
			group[k] = v
		}
		rec[key] = group
		return
	}

	group, ok := rec.Group(key)
	if !ok {
		c.logger.Warn().Str("key", key).Str("type", fmt.Sprintf("%T", existing)).Msg("Record field collides with metadata key, skipping metadata.")
		return
	}
	for k, v := range md {
		if _, taken := group[k]; !taken {
			group[k] = v
		}
	}
}

func (c *Controller) nack(msg messagepipeline.Message, reason string) {
	msg.Nack()
	c.metrics.RecordNack(c.subscription, reason)
}

func sinkName(s Sink) string {
	if named, ok := s.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", s)
}
