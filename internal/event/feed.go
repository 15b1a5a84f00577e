// Package event provides a typed observer list with explicit unsubscribe.
package event

// Feed delivers values of type T to subscribers in subscription order.
// A Feed is owned by the logical thread and is not safe for concurrent use.
type Feed[T any] struct {
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	f.next++
	id := f.next
	f.subs = append(f.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		for i, s := range f.subs {
			if s.id == id {
				f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every current subscriber with v.
func (f *Feed[T]) Emit(v T) {
	subs := f.subs
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	return len(f.subs)
}
