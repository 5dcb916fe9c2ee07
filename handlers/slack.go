package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

const shutdownTimeout = 10 * time.Second

// HandleSlackAction はSlackのインタラクションリクエストを検証してdispatchに渡す
func HandleSlackAction(signingSecret string, dispatch Dispatcher, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		verifier, err := slack.NewSecretsVerifier(c.Request.Header, signingSecret)
		if err != nil {
			logger.Warn("slack request without valid signature headers", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		if _, err := verifier.Write(body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify signature"})
			return
		}
		if err := verifier.Ensure(); err != nil {
			logger.Warn("slack request signature mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		form, err := url.ParseQuery(string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}

		var callback slack.InteractionCallback
		if err := json.Unmarshal([]byte(form.Get("payload")), &callback); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		// 先に200を返してからハンドラを実行する
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		for _, ev := range InteractionEvents(callback) {
			dispatch(c.Request.Context(), ev)
		}
	}
}

// HTTPListener はHTTPでインタラクションを受け取る（Request URL方式）
type HTTPListener struct {
	addr          string
	signingSecret string
	// trueなら1件処理したらサーバーを止める
	singleEvent   bool
	metrics       *services.Metrics
	logger        *slog.Logger
}

func NewHTTPListener(addr, signingSecret string, singleEvent bool, metrics *services.Metrics, logger *slog.Logger) *HTTPListener {
	return &HTTPListener{
		addr:          addr,
		signingSecret: signingSecret,
		singleEvent:   singleEvent,
		metrics:       metrics,
		logger:        logger,
	}
}

// Router はインタラクション、ヘルスチェック、メトリクスのルーティングを作成する
func (l *HTTPListener) Router(dispatch Dispatcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(l.metrics.Handler()))
	r.POST("/slack/interactions", HandleSlackAction(l.signingSecret, dispatch, l.logger))

	return r
}

// Listen はctxが終わるまで（singleEventなら最初の1件を処理するまで）HTTPサーバーを動かす
// 終了時は処理中のリクエストを待ってから閉じる
func (l *HTTPListener) Listen(ctx context.Context, dispatch Dispatcher) error {
	done := make(chan struct{})
	var once sync.Once
	wrapped := func(ctx context.Context, ev models.InteractionEvent) {
		dispatch(ctx, ev)
		if l.singleEvent {
			once.Do(func() { close(done) })
		}
	}

	srv := &http.Server{
		Addr:              l.addr,
		Handler:           l.Router(wrapped),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.logger.Info("listening for slack interactions", "addr", l.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &models.GatewayError{Op: "interaction endpoint", Err: err}
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	l.logger.Info("http listener stopped")
	return err
}
