package session

import (
	"sync"

	"parser2gis/internal/logger"
	"parser2gis/pkg/model"

	"github.com/google/uuid"
)

// Stopper 可被外部停止的会话，*cdp.Session 满足该接口
type Stopper interface {
	Stop()
	TargetID() string
}

// Manager 全局会话管理器
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]Stopper
	closed   bool
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]Stopper),
		log:      l,
	}
}

// Register 注册会话并返回其 ID。管理器已关闭时立即停止该会话。
func (m *Manager) Register(s Stopper) (model.SessionID, bool) {
	id := model.SessionID(uuid.NewString())
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Stop()
		m.log.Warn("会话管理器已关闭，拒绝新会话", "target", s.TargetID())
		return id, false
	}
	m.sessions[id] = s
	m.mu.Unlock()
	m.log.Debug("注册调试会话", "sessionID", string(id), "target", s.TargetID())
	return id, true
}

// Delete 注销会话，不停止它
func (m *Manager) Delete(id model.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.log.Debug("注销调试会话", "sessionID", string(id))
}

// List 返回所有活动会话 ID
func (m *Manager) List() []model.SessionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]model.SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		list = append(list, id)
	}
	return list
}

// StopAll 停止全部会话，之后注册的会话会被立即停止
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[model.SessionID]Stopper)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
			m.log.Info("已停止调试会话", "sessionID", string(id), "target", s.TargetID())
		}()
	}
	wg.Wait()
}

// Closed 是否已调用 StopAll
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
