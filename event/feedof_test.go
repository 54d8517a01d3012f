// Copyright 2025 The go-lira Authors
// This file is part of the go-lira library.
//
// The go-lira library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lira library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lira library. If not, see <http://www.gnu.org/licenses/>.

package event

import (
	"sync"
	"testing"
	"time"
)

func TestFeedOf(t *testing.T) {
	var feed FeedOf[int]
	var done, subscribed sync.WaitGroup
	subscriber := func(i int) {
		defer done.Done()

		subchan := make(chan int)
		sub := feed.Subscribe(subchan)
		timeout := time.NewTimer(2 * time.Second)
		defer timeout.Stop()
		subscribed.Done()

		select {
		case v := <-subchan:
			if v != 1 {
				t.Errorf("%d: received value %d, want 1", i, v)
			}
		case <-timeout.C:
			t.Errorf("%d: receive timeout", i)
		}

		sub.Unsubscribe()
		select {
		case _, ok := <-sub.Err():
			if ok {
				t.Errorf("%d: error channel not closed after unsubscribe", i)
			}
		case <-timeout.C:
			t.Errorf("%d: unsubscribe timeout", i)
		}
	}

	const n = 200
	done.Add(n)
	subscribed.Add(n)
	for i := 0; i < n; i++ {
		go subscriber(i)
	}
	subscribed.Wait()
	if nsent := feed.Send(1); nsent != n {
		t.Errorf("first send delivered %d times, want %d", nsent, n)
	}
	if nsent := feed.Send(2); nsent != 0 {
		t.Errorf("second send delivered %d times, want 0", nsent)
	}
	done.Wait()
}

func TestFeedOfUnsubscribeBeforeSend(t *testing.T) {
	var feed FeedOf[string]
	ch := make(chan string, 1)
	sub := feed.Subscribe(ch)
	sub.Unsubscribe()

	if n := feed.Send("x"); n != 0 {
		t.Fatalf("sent to %d subscribers, want 0", n)
	}
}

func TestFeedOfBufferedDelivery(t *testing.T) {
	var feed FeedOf[int]
	ch := make(chan int, 4)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	// Per-subscriber FIFO: values arrive in send order.
	for i := 1; i <= 4; i++ {
		if n := feed.Send(i); n != 1 {
			t.Fatalf("send %d delivered %d times", i, n)
		}
	}
	for i := 1; i <= 4; i++ {
		if got := <-ch; got != i {
			t.Fatalf("received %d, want %d", got, i)
		}
	}
}

func TestSubscriptionScope(t *testing.T) {
	var (
		feed  FeedOf[int]
		scope SubscriptionScope
	)
	ch1 := make(chan int, 1)
	ch2 := make(chan int, 1)
	s1 := scope.Track(feed.Subscribe(ch1))
	s2 := scope.Track(feed.Subscribe(ch2))
	if s1 == nil || s2 == nil {
		t.Fatal("track returned nil on open scope")
	}
	if scope.Count() != 2 {
		t.Fatalf("count = %d, want 2", scope.Count())
	}

	s1.Unsubscribe()
	if scope.Count() != 1 {
		t.Fatalf("count after unsubscribe = %d, want 1", scope.Count())
	}

	scope.Close()
	if n := feed.Send(1); n != 0 {
		t.Fatalf("closed scope still delivered %d times", n)
	}
	if scope.Track(feed.Subscribe(make(chan int))) != nil {
		t.Fatal("track on closed scope must return nil")
	}
}
