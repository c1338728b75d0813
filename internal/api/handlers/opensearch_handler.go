package handlers

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/search/resource"
)

const openSearchMimeType = "application/opensearchdescription+xml; charset=utf-8"

type openSearchDescription struct {
	XMLName        xml.Name         `xml:"http://a9.com/-/spec/opensearch/1.1/ OpenSearchDescription"`
	ShortName      string           `xml:"ShortName"`
	Description    string           `xml:"Description"`
	URLs           []openSearchURL  `xml:"Url"`
	Query          *openSearchQuery `xml:"Query,omitempty"`
	Image          string           `xml:"Image,omitempty"`
	InputEncoding  string           `xml:"InputEncoding"`
	OutputEncoding string           `xml:"OutputEncoding"`
}

type openSearchURL struct {
	Type     string `xml:"type,attr"`
	Method   string `xml:"method,attr"`
	Template string `xml:"template,attr"`
}

type openSearchQuery struct {
	Role        string `xml:"role,attr"`
	SearchTerms string `xml:"searchTerms,attr"`
}

// OpenSearchHandler publica descrições OpenSearch dos resources
type OpenSearchHandler struct {
	registry  *registry.Registry
	dontShare bool
}

func NewOpenSearchHandler(reg *registry.Registry, dontShare bool) *OpenSearchHandler {
	return &OpenSearchHandler{registry: reg, dontShare: dontShare}
}

// Get godoc
// @Summary Descrição OpenSearch de um resource
// @Tags opensearch
// @Produce xml
// @Param id path string true "Identificador do resource, com ou sem .xml"
// @Success 200 {string} string
// @Failure 404 {object} models.ErrorResponse
// @Router /searsia/opensearch/{id} [get]
func (h *OpenSearchHandler) Get(c *gin.Context) {
	id := strings.TrimSuffix(c.Param("id"), ".xml")

	var engine *resource.Resource
	if self := h.registry.Self(); self != nil && self.ID() == id {
		engine = self
	} else {
		engine = h.registry.Get(id)
	}
	if engine == nil {
		writeError(c, http.StatusNotFound, fmt.Errorf("resource %s não encontrado", id))
		return
	}

	data, err := xml.MarshalIndent(h.describe(engine.Public()), "", " ")
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, openSearchMimeType, append([]byte(xml.Header), append(data, '\n')...))
}

func (h *OpenSearchHandler) describe(desc models.Descriptor) openSearchDescription {
	name := desc.Name
	if name == "" {
		name = "Searsia"
	}
	method := http.MethodGet
	if desc.Post != "" {
		method = http.MethodPost
	}

	out := openSearchDescription{
		ShortName:      name,
		Description:    "Search the web with " + name,
		Image:          desc.Favicon,
		InputEncoding:  "UTF-8",
		OutputEncoding: "UTF-8",
	}
	if !h.dontShare && desc.APITemplate != "" {
		out.URLs = append(out.URLs, openSearchURL{Type: desc.MimeType, Method: method, Template: searchTerms(desc.APITemplate)})
	}
	if desc.URLTemplate != "" {
		out.URLs = append(out.URLs, openSearchURL{Type: "text/html", Method: http.MethodGet, Template: searchTerms(desc.URLTemplate)})
	}
	if desc.SuggestTemplate != "" {
		out.URLs = append(out.URLs, openSearchURL{Type: "application/x-suggestions+json", Method: http.MethodGet, Template: searchTerms(desc.SuggestTemplate)})
	}
	if desc.TestQuery != "" {
		out.Query = &openSearchQuery{Role: "example", SearchTerms: desc.TestQuery}
	}
	return out
}

// searchTerms troca {q} pelo nome de parâmetro do OpenSearch
func searchTerms(template string) string {
	return strings.ReplaceAll(template, "{q", "{searchTerms")
}
