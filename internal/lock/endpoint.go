// Пакет lock — per-endpoint взаимное исключение мутаций.
// Множество занятых ключей "<bucket>/<path>"; atomic insert-if-absent
// с release-handle, выполняемым на любом пути выхода. Конкурирующая
// мутация того же ключа получает 409 Conflict. Гарантия действует
// внутри процесса; между процессами корректность обеспечивает
// ifGenerationMatch драйвера.
package lock

import "sync"

// EndpointSet — множество endpoint-ключей с активной мутацией.
type EndpointSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New создаёт пустое множество.
func New() *EndpointSet {
	return &EndpointSet{held: make(map[string]struct{})}
}

// TryAcquire пытается захватить ключ. При успехе возвращает
// release-функцию (идемпотентную) и true; если ключ уже занят —
// nil и false.
func (s *EndpointSet) TryAcquire(key string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.held[key]; busy {
		return nil, false
	}
	s.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, key)
			s.mu.Unlock()
		})
	}, true
}

// Len возвращает количество занятых ключей (диагностика).
func (s *EndpointSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}
