package cdp

import (
	"context"
	"encoding/json"

	adapter "parser2gis/internal/adapter/cdp"

	"github.com/mafredri/cdp/rpcc"
)

const (
	evRequestWillBeSent = "Network.requestWillBeSent"
	evResponseReceived  = "Network.responseReceived"
	evLoadingFailed     = "Network.loadingFailed"
)

var networkEvents = []string{evRequestWillBeSent, evResponseReceived, evLoadingFailed}

// decodeEvent 将原始事件参数解码为 event
func decodeEvent(name string, raw []byte) (event, bool) {
	switch name {
	case evRequestWillBeSent:
		return event{kind: eventRequestSent, request: adapter.ToNeutralRequest(raw)}, true
	case evResponseReceived:
		return event{kind: eventResponseReceived, response: adapter.ToNeutralResponse(raw)}, true
	case evLoadingFailed:
		return event{kind: eventLoadingFailed, failure: adapter.ToFailure(raw)}, true
	}
	return event{}, false
}

// subscribe 在启用 Network 域之前建立事件流，避免漏掉首批事件。
// 三个事件流通过 rpcc.Sync 保持到达顺序，并由同一个 goroutine 读取。
func (s *Session) subscribe() error {
	streams := make([]rpcc.Stream, 0, len(networkEvents))
	closeAll := func() {
		for _, st := range streams {
			_ = st.Close()
		}
	}
	for _, name := range networkEvents {
		st, err := rpcc.NewStream(s.ctx, name, s.conn)
		if err != nil {
			closeAll()
			return s.wrap(context.Background(), err)
		}
		streams = append(streams, st)
	}
	if err := rpcc.Sync(streams...); err != nil {
		closeAll()
		return s.wrap(context.Background(), err)
	}
	s.group.Go(func() error {
		s.consume(streams[0], streams[1], streams[2])
		return nil
	})
	return nil
}

// consume 按到达顺序接收网络事件直到会话结束或连接断开
func (s *Session) consume(sent, received, failed rpcc.Stream) {
	defer func() {
		_ = sent.Close()
		_ = received.Close()
		_ = failed.Close()
	}()

	for {
		var (
			name   string
			stream rpcc.Stream
		)
		select {
		case <-s.ctx.Done():
			return
		case <-sent.Ready():
			name, stream = evRequestWillBeSent, sent
		case <-received.Ready():
			name, stream = evResponseReceived, received
		case <-failed.Ready():
			name, stream = evLoadingFailed, failed
		}

		var raw json.RawMessage
		if err := stream.RecvMsg(&raw); err != nil {
			if s.ctx.Err() == nil {
				s.log.Warn("事件流中断，标签页连接已断开", "event", name, "error", err)
				s.cancel(ErrTabStopped)
			}
			return
		}
		if len(raw) == 0 {
			continue
		}
		if ev, ok := decodeEvent(name, raw); ok {
			s.tracker.dispatch(ev)
		}
	}
}
