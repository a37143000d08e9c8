package handlers

import (
	"io"
	"time"

	"canteen-runner-api/middleware"
	"canteen-runner-api/realtime"
	"canteen-runner-api/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sseKeepAlive = 25 * time.Second

// RunnerFeedWS streams the runner board over a WebSocket: a snapshot frame,
// then one frame per relevant order change.
func (h *Handler) RunnerFeedWS(c *gin.Context) {
	runnerID := middleware.GetUserID(c)
	sub, snapshot, err := h.feed.SubscribeRunner(c.Request.Context(), runnerID, c.Query("location"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serveWS(c, sub, snapshot, service.RunnerFrame(runnerID))
}

// OrderFeedWS streams the caller's own orders over a WebSocket.
func (h *Handler) OrderFeedWS(c *gin.Context) {
	sub, snapshot, err := h.feed.SubscribeBuyer(c.Request.Context(), middleware.GetUserID(c), h.orders)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serveWS(c, sub, snapshot, service.BuyerFrame)
}

func (h *Handler) serveWS(c *gin.Context, sub *realtime.Subscription, snapshot service.Frame, render realtime.Render) {
	conn, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.feed.Unsubscribe(sub)
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	realtime.NewClient(h.feed.Hub(), conn, sub, render, h.log).Serve(snapshot)
}

// RunnerFeedSSE is RunnerFeedWS over Server-Sent Events.
func (h *Handler) RunnerFeedSSE(c *gin.Context) {
	runnerID := middleware.GetUserID(c)
	sub, snapshot, err := h.feed.SubscribeRunner(c.Request.Context(), runnerID, c.Query("location"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serveSSE(c, sub, snapshot, service.RunnerFrame(runnerID))
}

func (h *Handler) OrderFeedSSE(c *gin.Context) {
	sub, snapshot, err := h.feed.SubscribeBuyer(c.Request.Context(), middleware.GetUserID(c), h.orders)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serveSSE(c, sub, snapshot, service.BuyerFrame)
}

func (h *Handler) serveSSE(c *gin.Context, sub *realtime.Subscription, snapshot service.Frame, render realtime.Render) {
	defer h.feed.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(snapshot.Type, snapshot)
	c.Writer.Flush()

	ctx := c.Request.Context()
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			if frame, ok := render(ev); ok {
				c.SSEvent(string(ev.Type), frame)
			}
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
