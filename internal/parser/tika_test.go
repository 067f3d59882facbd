package parser

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTikaExtract_SplitsPagesOnFormFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		// Tika 的纯文本输出以换页符分隔页面
		_, _ = w.Write([]byte("第一页内容\n\f第二页内容\n\f"))
	}))
	defer srv.Close()

	engine := NewTika(srv.URL)
	pages, err := engine.Extract([]byte("%PDF-1.4 fake"), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "第一页内容", pages[0].Text)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.Equal(t, "第二页内容", pages[1].Text)
	// 末尾换页符产生的空白页保留页码，由下游切块跳过
	assert.Equal(t, 3, pages[2].PageNumber)
	assert.Empty(t, pages[2].Text)
}

func TestTikaExtract_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("Unsupported media type"))
	}))
	defer srv.Close()

	engine := NewTika(srv.URL)
	_, err := engine.Extract([]byte("not a pdf"), "doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tika")
}

func TestTikaExtract_SinglePageNoFormFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("只有一页"))
	}))
	defer srv.Close()

	engine := NewTika(srv.URL)
	pages, err := engine.Extract([]byte("%PDF-1.4 fake"), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "只有一页", pages[0].Text)
}
