// Package integration exercises the full client stack against the mock
// service: streaming queries, identity adoption, and conversation history
// rebuilds, all over real HTTP.
package integration_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bharatr21/clinical-trials-agent/internal/client"
	"github.com/bharatr21/clinical-trials-agent/internal/conversation"
	"github.com/bharatr21/clinical-trials-agent/internal/event"
	"github.com/bharatr21/clinical-trials-agent/internal/identity"
	"github.com/bharatr21/clinical-trials-agent/internal/mockserver"
	"github.com/bharatr21/clinical-trials-agent/internal/storage"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

func TestClientServiceIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Client Service Integration Suite")
}

const scenarioScript = `
scenarios:
  - match: "phase 3"
    stages:
      - stage: analyzing
        label: Analyzing your question
      - stage: generating_sql
        label: Generating SQL query
      - stage: executing
        label: Searching clinical trials
    sql: "SELECT COUNT(*) FROM trials WHERE phase = 'Phase 3'"
    tokens: ["There ", "are ", "42 ", "trials."]
  - match: "slow"
    tokens: ["never", " finishes"]
    token_delay: 50ms
  - match: "quota"
    error:
      message: "You exceeded your current quota, please check your plan and billing details."
      code: insufficient_quota
  - tokens: ["Generic ", "answer."]
`

// collector records every observer callback from one query.
type collector struct {
	mu     sync.Mutex
	stages []string
	tokens strings.Builder
	sql    string
	errMsg string
	code   string
}

func (c *collector) observers() client.Observers {
	return client.Observers{
		OnStage: func(stage, label string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.stages = append(c.stages, stage)
		},
		OnToken: func(content string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.tokens.WriteString(content)
		},
		OnSQL: func(query string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.sql = query
		},
		OnError: func(message, code string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errMsg = message
			c.code = code
		},
	}
}

var _ = Describe("Client against the mock service", func() {
	var (
		srv      *httptest.Server
		fileDir  string
		provider *identity.Provider
		c        *client.Client
		bus      *event.Bus
	)

	BeforeEach(func() {
		scenarios, err := mockserver.ParseScenarios([]byte(scenarioScript))
		Expect(err).NotTo(HaveOccurred())

		cfg := mockserver.DefaultConfig()
		cfg.Scenarios = scenarios
		srv = httptest.NewServer(mockserver.New(cfg).Router())
		DeferCleanup(srv.Close)

		fileDir = GinkgoT().TempDir()
		provider = identity.NewProvider(identity.NewFileStore(storage.New(fileDir)))

		bus = event.NewBus()
		DeferCleanup(func() { bus.Close() })

		c, err = client.New(srv.URL, provider, client.WithAPIKey("sk-test"), client.WithBus(bus))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("streaming a query", func() {
		It("delivers stages, sql, tokens, and the final result in order", func() {
			rec := &collector{}
			result := c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", rec.observers())

			Expect(result).NotTo(BeNil())
			Expect(result.Answer).To(Equal("There are 42 trials."))
			Expect(result.SQL).To(ContainSubstring("Phase 3"))
			Expect(result.ConversationID).NotTo(BeEmpty())

			Expect(rec.stages).To(Equal([]string{"analyzing", "generating_sql", "executing"}))
			Expect(rec.tokens.String()).To(Equal("There are 42 trials."))
			Expect(rec.sql).To(Equal(result.SQL))
			Expect(rec.errMsg).To(BeEmpty())
		})

		It("publishes lifecycle events on the bus", func() {
			var mu sync.Mutex
			var seen []event.EventType
			unsub := bus.SubscribeAll(func(e event.Event) {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, e.Type)
			})
			DeferCleanup(unsub)

			c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", client.Observers{})

			mu.Lock()
			defer mu.Unlock()
			Expect(seen[0]).To(Equal(event.QueryStage))
			Expect(seen[len(seen)-1]).To(Equal(event.QueryDone))
			Expect(seen).To(ContainElement(event.QuerySQL))
		})

		It("reports classified failures through OnError", func() {
			rec := &collector{}
			result := c.ExecuteQuery(context.Background(), "trigger the quota case", "", rec.observers())

			Expect(result).To(BeNil())
			Expect(rec.code).To(Equal(types.ErrCodeInsufficientQuota))
			Expect(types.CredentialError(rec.code)).To(BeTrue())
		})

		It("stops cleanly when the caller cancels mid-stream", func() {
			ctx, cancel := context.WithCancel(context.Background())
			rec := &collector{}

			done := make(chan *types.QueryResult, 1)
			go func() {
				done <- c.ExecuteQuery(ctx, "a slow answer", "", rec.observers())
			}()
			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(rec.errMsg).To(BeEmpty(), "cancellation is not an error")
		})
	})

	Describe("identity", func() {
		It("derives one identity and keeps it across requests", func() {
			first, err := provider.Get(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(MatchRegexp(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`))

			c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", client.Observers{})

			again, err := provider.Get(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(first))
		})

		It("scopes conversations to the client identity", func() {
			result := c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", client.Observers{})
			Expect(result).NotTo(BeNil())

			list, err := c.ListConversations(context.Background(), 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Total).To(Equal(1))

			// A client with a different identity sees nothing.
			otherDir := GinkgoT().TempDir()
			otherProvider := identity.NewProvider(
				identity.NewFileStore(storage.New(otherDir)),
				identity.WithCollector(fixedSignals{}),
			)
			other, err := client.New(srv.URL, otherProvider)
			Expect(err).NotTo(HaveOccurred())

			otherList, err := other.ListConversations(context.Background(), 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(otherList.Total).To(BeZero())
		})
	})

	Describe("conversation history", func() {
		It("rebuilds display messages with their SQL artifacts", func() {
			result := c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", client.Observers{})
			Expect(result).NotTo(BeNil())

			// Follow up in the same conversation.
			followUp := c.ExecuteQuery(context.Background(), "asking again about phase 3", result.ConversationID, client.Observers{})
			Expect(followUp).NotTo(BeNil())
			Expect(followUp.ConversationID).To(Equal(result.ConversationID))

			detail, err := c.GetConversation(context.Background(), result.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.Messages).To(HaveLen(4))

			display := conversation.Reconstruct(detail.Messages)
			Expect(display).To(HaveLen(4))
			Expect(display[0].Role).To(Equal(types.RoleUser))
			Expect(display[1].Role).To(Equal(types.RoleAssistant))
			Expect(display[1].SQL).To(ContainSubstring("Phase 3"))
			Expect(display[3].SQL).To(ContainSubstring("Phase 3"))
		})

		It("deletes conversations", func() {
			result := c.ExecuteQuery(context.Background(), "how many phase 3 trials?", "", client.Observers{})
			Expect(result).NotTo(BeNil())

			Expect(c.DeleteConversation(context.Background(), result.ConversationID)).To(Succeed())

			_, err := c.GetConversation(context.Background(), result.ConversationID)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("service health", func() {
		It("reports healthy", func() {
			health, err := c.Health(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(health.Status).To(Equal("healthy"))
		})
	})
})

// fixedSignals forces a distinct fingerprint so two providers derive
// different identities on the same machine.
type fixedSignals struct{}

func (fixedSignals) Collect() identity.Signals {
	return identity.Signals{
		ScreenWidth: 800, ScreenHeight: 600,
		ColorDepth: 16, PixelDepth: 16, PixelRatio: 1,
		Timezone: "UTC", Language: "fr-FR", Languages: []string{"fr-FR"},
		Platform: "test/other", Cores: 2, MemoryGB: 4,
	}
}
