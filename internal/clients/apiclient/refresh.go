package apiclient

import "sync"

// refreshOutcome - итог обновления токенов, который получают ожидающие запросы:
// новый access-токен или исходная ошибка, вызвавшая обновление.
type refreshOutcome struct {
	token string
	err   error
}

type refreshRole int

const (
	// roleLeader - вызывающий выполняет обновление сам и обязан вызвать settle.
	roleLeader refreshRole = iota
	// roleWaiter - обновление уже идёт, вызывающий ждёт итога в очереди.
	roleWaiter
	// roleReplay - пока запрос был в полёте, токены уже обновились: достаточно повторить.
	roleReplay
)

type refreshTicket struct {
	role  refreshRole
	wait  <-chan refreshOutcome
	token string
}

// refreshState - флаг "обновление идёт" и FIFO-очередь ожидающих.
// Проверка флага и постановка в очередь выполняются под одним захватом mu,
// поэтому два запроса не могут одновременно стать лидерами.
type refreshState struct {
	mu         sync.Mutex
	inProgress bool
	waiters    []chan refreshOutcome
}

// beginRefresh определяет роль запроса, получившего 401 с токеном sent.
// current возвращает актуальный access-токен клиента; вызывается под mu.
func (s *refreshState) beginRefresh(sent string, current func() string) refreshTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return refreshTicket{role: roleWaiter, wait: s.enqueueWaiter()}
	}

	if tok := current(); tok != "" && tok != sent {
		return refreshTicket{role: roleReplay, token: tok}
	}

	s.inProgress = true

	return refreshTicket{role: roleLeader}
}

// enqueueWaiter ставит ожидающего в конец очереди. Вызывается под mu.
func (s *refreshState) enqueueWaiter() <-chan refreshOutcome {
	ch := make(chan refreshOutcome, 1)
	s.waiters = append(s.waiters, ch)

	return ch
}

// settle раздаёт итог ожидающим в порядке постановки в очередь и сбрасывает флаг
// в той же критической секции. Повторный вызов без активного обновления - no-op.
func (s *refreshState) settle(out refreshOutcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inProgress {
		return 0
	}

	n := len(s.waiters)
	for _, ch := range s.waiters {
		ch <- out
	}

	s.waiters = nil
	s.inProgress = false

	return n
}

// pending - длина очереди (для тестов и метрик).
func (s *refreshState) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.waiters)
}
