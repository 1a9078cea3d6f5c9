package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchIndexer 基于ES的关键词全文索引
type ElasticsearchIndexer struct {
	client    *elasticsearch.Client
	indexName string
	created   bool
	mu        sync.Mutex
}

// NewElasticsearchIndexer 创建ES索引器，地址为空时退化为Noop
func NewElasticsearchIndexer(addresses []string, username, password, apiKey, indexPrefix string) (FulltextIndexer, error) {
	if len(addresses) == 0 {
		return &NoopFulltextIndexer{}, nil
	}

	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		APIKey:    apiKey,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if indexPrefix == "" {
		indexPrefix = "docchat"
	}

	return &ElasticsearchIndexer{
		client:    client,
		indexName: indexPrefix + "_chunks",
	}, nil
}

func (e *ElasticsearchIndexer) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	if e.created {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	req := esapi.IndicesExistsRequest{
		Index: []string{e.indexName},
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		e.mu.Lock()
		e.created = true
		e.mu.Unlock()
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"chunk_id":    map[string]interface{}{"type": "keyword"},
				"document_id": map[string]interface{}{"type": "keyword"},
				"chunk_index": map[string]interface{}{"type": "integer"},
				"title":       map[string]interface{}{"type": "keyword"},
				"content": map[string]interface{}{
					"type":          "text",
					"index_options": "offsets",
				},
				"created_at": map[string]interface{}{"type": "date"},
			},
		},
	}

	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: e.indexName,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}

	e.mu.Lock()
	e.created = true
	e.mu.Unlock()
	return nil
}

func (e *ElasticsearchIndexer) IndexChunks(ctx context.Context, chunks []FulltextChunk) error {
	if e.client == nil || len(chunks) == 0 {
		return nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	for _, chunk := range chunks {
		doc := map[string]interface{}{
			"chunk_id":    chunk.ChunkID,
			"document_id": chunk.DocumentID,
			"chunk_index": chunk.ChunkIndex,
			"title":       chunk.Title,
			"content":     chunk.Content,
			"created_at":  chunk.CreatedAt,
		}

		payload, _ := json.Marshal(doc)
		req := esapi.IndexRequest{
			Index:      e.indexName,
			DocumentID: chunk.ChunkID,
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}

		resp, err := req.Do(ctx, e.client)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.IsError() {
			return fmt.Errorf("index chunk error: %s", resp.String())
		}
	}

	return nil
}

func (e *ElasticsearchIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	if e.client == nil {
		return nil
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}

	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.indexName},
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("delete document error: %s", resp.String())
	}

	return nil
}

func (e *ElasticsearchIndexer) Search(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if e.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	// 短语匹配优先，关键词匹配兜底
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"match_phrase": map[string]interface{}{
							"content": map[string]interface{}{
								"query": query,
								"boost": 3.0,
							},
						},
					},
					map[string]interface{}{
						"match": map[string]interface{}{
							"content": map[string]interface{}{
								"query":                query,
								"operator":             "and",
								"minimum_should_match": "70%",
								"boost":                1.0,
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"content": map[string]interface{}{
					"fragment_size":       150,
					"number_of_fragments": 1,
					"pre_tags":            []string{"<mark>"},
					"post_tags":           []string{"</mark>"},
				},
			},
		},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.indexName},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawHits, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]KeywordMatch, 0, len(rawHits))
	for _, raw := range rawHits {
		hit, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		score, _ := hit["_score"].(float64)
		chunkID, _ := hit["_id"].(string)

		var content, documentID string
		if doc, ok := hit["_source"].(map[string]interface{}); ok {
			content, _ = doc["content"].(string)
			documentID, _ = doc["document_id"].(string)
		}

		var highlight string
		if hmap, ok := hit["highlight"].(map[string]interface{}); ok {
			if arr, ok := hmap["content"].([]interface{}); ok && len(arr) > 0 {
				highlight = fmt.Sprintf("%v", arr[0])
			}
		}

		matches = append(matches, KeywordMatch{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Content:    content,
			Score:      score,
			Highlight:  highlight,
		})
	}

	return matches, nil
}

func (e *ElasticsearchIndexer) Ready() bool {
	return e.client != nil
}
