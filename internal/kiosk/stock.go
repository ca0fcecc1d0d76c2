package kiosk

import "sync/atomic"

// Stock 奖励纸库存。兑换出纸时扣减，维护接口可补充。
type Stock struct {
	current  atomic.Int64
	capacity int64
}

// NewStock 创建库存计数
func NewStock(initial, capacity int64) *Stock {
	s := &Stock{capacity: capacity}
	s.current.Store(initial)
	return s
}

// Current 当前库存
func (s *Stock) Current() int64 {
	return s.current.Load()
}

// Capacity 库存容量
func (s *Stock) Capacity() int64 {
	return s.capacity
}

// Consume 扣减库存，不降到0以下
func (s *Stock) Consume(n int64) {
	for {
		cur := s.current.Load()
		next := cur - n
		if next < 0 {
			next = 0
		}
		if s.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Refill 补充库存，超过容量按容量计
func (s *Stock) Refill(n int64) {
	for {
		cur := s.current.Load()
		next := cur + n
		if next > s.capacity {
			next = s.capacity
		}
		if s.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Empty 库存是否已空
func (s *Stock) Empty() bool {
	return s.current.Load() <= 0
}
