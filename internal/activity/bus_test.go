package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, c chan Event) Event {
	t.Helper()
	select {
	case evt := <-c:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusTopicFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.Subscribe()
	depositsOnly := bus.Subscribe(TopicDeposits)
	wallet := bus.Subscribe(BalanceTopic("w1"))

	bus.Publish(TopicDeposits, "deposit_created", nil)
	bus.Publish(BalanceTopic("w1"), "balance_changed", nil)
	bus.Publish(BalanceTopic("w2"), "balance_changed", nil)

	assert.Equal(t, TopicDeposits, recvEvent(t, all.C).Topic)
	assert.Equal(t, BalanceTopic("w1"), recvEvent(t, all.C).Topic)
	assert.Equal(t, BalanceTopic("w2"), recvEvent(t, all.C).Topic)

	assert.Equal(t, TopicDeposits, recvEvent(t, depositsOnly.C).Topic)
	select {
	case evt := <-depositsOnly.C:
		t.Fatalf("unexpected event %v", evt)
	default:
	}

	evt := recvEvent(t, wallet.C)
	assert.Equal(t, BalanceTopic("w1"), evt.Topic)
	select {
	case evt := <-wallet.C:
		t.Fatalf("unexpected event %v", evt)
	default:
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	slow := bus.Subscribe(TopicTrades)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(TopicTrades, "trade_settled", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	bus.Unsubscribe(slow)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicWithdrawals)
	bus.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)

	// double unsubscribe must not panic
	bus.Unsubscribe(sub)
}

func TestBusCloseIsTerminal(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	bus.Close()

	_, open := <-sub.C
	require.False(t, open)

	// publishing and subscribing after close are no-ops
	bus.Publish(TopicDeposits, "late", nil)
	late := bus.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}

func TestBusConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(TopicConversions)
			for j := 0; j < 20; j++ {
				select {
				case <-sub.C:
				default:
				}
			}
			bus.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(TopicConversions, "conversion_created", j)
			}
		}()
	}
	wg.Wait()
}
