package traffic

import "sync"

// ResponseQueue 并发安全的无界 FIFO 响应队列
type ResponseQueue struct {
	mu    sync.Mutex
	items []*Response
}

// NewResponseQueue 创建空队列
func NewResponseQueue() *ResponseQueue {
	return &ResponseQueue{}
}

// Push 入队
func (q *ResponseQueue) Push(r *Response) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// Pop 非阻塞出队，队列为空时返回 false
func (q *ResponseQueue) Pop() (*Response, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r, true
}

// Len 当前长度
func (q *ResponseQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain 清空队列
func (q *ResponseQueue) Drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
