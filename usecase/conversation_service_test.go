package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/jumpgpt/adapters/memory"
	"github.com/satriahrh/jumpgpt/domain/entities"
)

// pausingRepository holds one List result back until release is closed
type pausingRepository struct {
	*memory.ConversationRepository

	mu      sync.Mutex
	armed   bool
	paused  chan struct{}
	release chan struct{}
}

func (r *pausingRepository) arm() {
	r.mu.Lock()
	r.armed = true
	r.mu.Unlock()
}

func (r *pausingRepository) List(ctx context.Context) ([]*entities.Conversation, error) {
	list, err := r.ConversationRepository.List(ctx)

	r.mu.Lock()
	pause := r.armed
	r.armed = false
	r.mu.Unlock()

	if pause {
		close(r.paused)
		<-r.release
	}
	return list, err
}

func TestConversationService_PublishedListFollowsWrites(t *testing.T) {
	repo := &pausingRepository{
		ConversationRepository: memory.NewConversationRepository(),
		paused:                 make(chan struct{}),
		release:                make(chan struct{}),
	}
	conversations := NewConversationService(repo, clock.NewMock(), zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := conversations.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}

	repo.arm()
	created := make(chan struct{})
	go func() {
		defer close(created)
		if _, err := conversations.Create(ctx); err != nil {
			t.Errorf("Create: %v", err)
		}
	}()
	<-repo.paused

	modified := make(chan struct{})
	go func() {
		defer close(modified)
		_, err := conversations.Modify(ctx, first.ID, func(c *entities.Conversation, now time.Time) error {
			c.AddMessage(entities.NewMessage(entities.MessageRoleUser, "bump", now), now)
			return nil
		})
		if err != nil {
			t.Errorf("Modify: %v", err)
		}
	}()

	// give Modify the chance to overtake the paused refresh
	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	<-created
	<-modified

	list := conversations.Summaries()
	if len(list) != 2 {
		t.Fatalf("Expected two conversations, got %+v", list)
	}
	for _, s := range list {
		if s.ID == first.ID && s.LastMessage != "bump" {
			t.Errorf("Expected published list to include the modification, got %+v", s)
		}
	}
}

func TestConversationService_Search(t *testing.T) {
	conversations, clk := newConversations(t)
	ctx := context.Background()

	titles := []string{"Trip to Kyoto", "Grocery list"}
	for _, title := range titles {
		conv, err := conversations.Create(ctx)
		if err != nil {
			t.Fatal(err)
		}
		clk.Add(time.Minute)
		if _, err := conversations.Modify(ctx, conv.ID, func(c *entities.Conversation, _ time.Time) error {
			c.Title = title
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	found, err := conversations.Search(ctx, "  kyoto ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Trip to Kyoto" {
		t.Errorf("Expected the Kyoto conversation, got %+v", found)
	}

	all, err := conversations.Search(ctx, "")
	if err != nil || len(all) != 2 {
		t.Errorf("Expected empty query to list everything, got %d, %v", len(all), err)
	}
}
