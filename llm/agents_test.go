package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"casefile-backend/models"
	"casefile-backend/normalize"
	"casefile-backend/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	prompts  []string
	images   [][]Image
}

func (m *scriptedModel) GenerateJSON(ctx context.Context, prompt string, images []Image) ([]byte, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.images = append(m.images, images)
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return []byte(m.response), nil
}

type mapFetcher map[string][]byte

func (f mapFetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	data, ok := f[src]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func loadRules(t *testing.T) *rules.Snapshot {
	t.Helper()
	l := rules.NewLoader(rules.PathsIn("../config"))
	require.NoError(t, l.Load())
	return l.Snapshot()
}

func TestClassify(t *testing.T) {
	snap := loadRules(t)
	urls := []string{
		"https://files.example.com/%E8%BA%AB%E4%BB%BD%E8%AF%81.jpg",
		"https://files.example.com/invoice.png",
		"https://files.example.com/blurry.jpg",
		"https://files.example.com/passport.jpg",
	}
	model := &scriptedModel{response: `{"results":[
		{"image_url":"https://files.example.com/invoice.png","evidence_type":"增值税发票","confidence":0.9,"reasoning":"发票监制章"},
		{"image_url":"https://files.example.com/身份证.jpg","evidence_type":"居民身份证","confidence":0.95,"reasoning":"国徽"},
		{"image_url":"https://files.example.com/blurry.jpg","evidence_type":"未知","confidence":0,"reasoning":"无法辨认"},
		{"image_url":"https://files.example.com/passport.jpg","evidence_type":"护照","confidence":0.8,"reasoning":"护照"},
		{"image_url":"https://elsewhere/x.jpg","evidence_type":"借条","confidence":0.8,"reasoning":""}
	]}`}
	c := NewClassifier(model)

	got, err := c.Classify(context.Background(), snap, urls)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// input order, original URLs, aliases canonicalised
	assert.Equal(t, urls[0], got[0].URL)
	assert.Equal(t, rules.CategoryIDCard, got[0].EvidenceType)
	assert.True(t, got[0].Known())
	assert.Equal(t, rules.CategoryVATInvoice, got[1].EvidenceType)
	assert.False(t, got[2].Known())
	assert.Equal(t, normalize.Unknown, got[3].EvidenceType)
	assert.False(t, got[3].Known())

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "### 1. 身份证")
	assert.Len(t, model.images[0], 4)
	assert.Equal(t, "jpeg", model.images[0][0].Format)
	assert.Equal(t, "png", model.images[0][1].Format)
}

func TestClassifyPositionalAnswers(t *testing.T) {
	snap := loadRules(t)
	model := &scriptedModel{response: `{"results":[{"evidence_type":"借条","confidence":0.7,"reasoning":""},{"evidence_type":"转账记录","confidence":0.6,"reasoning":""}]}`}
	got, err := NewClassifier(model).Classify(context.Background(), snap, []string{"a.jpg", "b.jpg"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.jpg", got[0].URL)
	assert.Equal(t, "转账记录", got[1].EvidenceType)
}

func TestClassifySkipsUndownloadableImages(t *testing.T) {
	snap := loadRules(t)
	model := &scriptedModel{response: `{"results":[{"image_url":"a.jpg","evidence_type":"借条","confidence":0.7,"reasoning":""}]}`}
	c := NewClassifier(model, WithFetcher(mapFetcher{"a.jpg": []byte("a")}))
	got, err := c.Classify(context.Background(), snap, []string{"a.jpg", "missing.jpg"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, model.images[0], 1)
	assert.Equal(t, []byte("a"), model.images[0][0].Data)
}

func TestExtractConformsToConfiguredSlots(t *testing.T) {
	snap := loadRules(t)
	model := &scriptedModel{response: "```json\n" + `{"results":[
		{"image_url":"iou.jpg","evidence_type":"借条","slots":[
			{"slot_name":"借款金额","slot_value":1000.50,"confidence":0.9,"reasoning":"正文"},
			{"slot_name":"出借人","slot_value":"张三","confidence":0.9,"reasoning":"落款"},
			{"slot_name":"利息","slot_value":"无","confidence":0.5,"reasoning":"臆造"},
			{"slot_name":"借款人","slot_value":null,"confidence":0.2,"reasoning":""}
		]}
	]}` + "\n```"}
	e := NewExtractor(model)

	got, err := e.Extract(context.Background(), snap, []ExtractionTarget{
		{URL: "iou.jpg", Category: "借条"},
		{URL: "unconfigured.jpg", Category: "不存在的类型"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, model.images[0], 1, "unconfigured categories are not sent")

	slots := got[0].Slots
	assert.Equal(t, []string{"出借人", "借款人", "借款金额", "借款日期", "约定还款日期"}, slotNames(slots))

	amount, _ := slots.Find("借款金额")
	assert.Equal(t, "1000.5", amount.Value())
	assert.Equal(t, "number", amount.SlotValueType)

	borrower, _ := slots.Find("借款人")
	assert.Equal(t, normalize.Unknown, borrower.Value())
	assert.Equal(t, missingReasoning, borrower.Reasoning)
	assert.Zero(t, borrower.Confidence)

	_, invented := slots.Find("利息")
	assert.False(t, invented)
}

func slotNames(slots models.SlotRecords) []string {
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.SlotName)
	}
	return names
}

func TestAssociationGroups(t *testing.T) {
	snap := loadRules(t)
	urls := []string{"c1.png", "c2.png", "c3.png", "c4.png"}
	model := &scriptedModel{response: `{"groups":[
		{"group_name":"明天会更好","image_urls":["c2.png","c1.png","ghost.png"],"reasoning":"同一昵称","slots":[
			{"slot_name":"欠款金额","slot_value":"5000.00","confidence":0.9,"reasoning":"","reference_urls":["c2.png"]},
			{"slot_name":"微信备注名","slot_value":"明天会更好","confidence":0.9,"reasoning":""}
		]},
		{"group_name":"老板","image_urls":["c3.png","c4.png"],"reasoning":"","slots":[]}
	]}`}
	a := NewAssociationExtractor(model)

	groups, err := a.Extract(context.Background(), snap, urls)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	first := groups[0]
	assert.Equal(t, "明天会更好", first.GroupName)
	assert.Equal(t, []string{"c2.png", "c1.png"}, first.URLs, "model order is kept, unknown urls dropped")
	require.Len(t, first.Slots, 5)
	assert.Equal(t, "微信备注名", first.Slots[0].Record.SlotName)
	assert.Equal(t, []string{"c2.png", "c1.png"}, first.Slots[0].ReferenceURLs, "uncited slots reference the whole group")
	assert.Equal(t, "5000", first.Slots[1].Record.Value())
	assert.Equal(t, []string{"c2.png"}, first.Slots[1].ReferenceURLs)

	second := groups[1]
	assert.Equal(t, "老板", second.GroupName)
	assert.Equal(t, []string{"c3.png", "c4.png"}, second.URLs)
	for _, s := range second.Slots {
		assert.Equal(t, normalize.Unknown, s.Record.Value())
	}
}

func TestAgentErrors(t *testing.T) {
	snap := loadRules(t)

	slow := &scriptedModel{response: `{"results":[]}`, delay: time.Second}
	_, err := NewClassifier(slow, WithTimeout(10*time.Millisecond)).Classify(context.Background(), snap, []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrRemoteTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewClassifier(slow).Classify(ctx, snap, []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrRemoteTimeout, "caller cancellation surfaces as a timeout")

	_, err = NewClassifier(&scriptedModel{response: `not json`}).Classify(context.Background(), snap, []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NewClassifier(&scriptedModel{response: `{"results":[{"image_url":"a.jpg","evidence_type":"借条","confidence":1.5}]}`}).
		Classify(context.Background(), snap, []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NewAssociationExtractor(&scriptedModel{response: `{"groups":[{"group_name":"","image_urls":["a.jpg"]}]}`}).
		Extract(context.Background(), snap, []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NewExtractor(&scriptedModel{err: errors.New("503")}).
		Extract(context.Background(), snap, []ExtractionTarget{{URL: "a.jpg", Category: "借条"}})
	assert.ErrorIs(t, err, ErrRemoteCall)
}
