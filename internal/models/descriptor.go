package models

import "time"

// Descriptor é a forma JSON de um resource da federação.
// PrivateParameters só aparece na forma armazenada, nunca na pública.
type Descriptor struct {
	ID                string            `json:"id" validate:"required,max=200"`
	Name              string            `json:"name,omitempty"`
	APITemplate       string            `json:"apitemplate,omitempty" validate:"omitempty,max=2000"`
	URLTemplate       string            `json:"urltemplate,omitempty"`
	SuggestTemplate   string            `json:"suggesttemplate,omitempty"`
	MimeType          string            `json:"mimetype,omitempty"`
	Post              string            `json:"post,omitempty"`
	PostEncode        string            `json:"postencode,omitempty"`
	Favicon           string            `json:"favicon,omitempty"`
	Banner            string            `json:"banner,omitempty"`
	ItemPath          string            `json:"itempath,omitempty"`
	TestQuery         string            `json:"testquery,omitempty"`
	Rerank            string            `json:"rerank,omitempty"`
	Prior             *float64          `json:"prior,omitempty" validate:"omitempty,gte=0"`
	MaxQueriesPerDay  int               `json:"maxqueriesperday,omitempty" validate:"gte=0"`
	Deleted           bool              `json:"deleted,omitempty"`
	Extractors        map[string]string `json:"extractors,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	PrivateParameters map[string]string `json:"privateparameters,omitempty"`
	ResultTypes       []string          `json:"resulttypes,omitempty"`
}

// Public devolve uma cópia sem os parâmetros privados
func (d Descriptor) Public() Descriptor {
	d.PrivateParameters = nil
	return d
}

// ResourceHealth guarda o estado de saúde persistido junto com o resource
type ResourceHealth struct {
	OK          int       `json:"ok"`
	Errors      int       `json:"error"`
	LastMessage string    `json:"lastmessage,omitempty"`
	LastSuccess time.Time `json:"lastsuccess,omitzero"`
	LastError   time.Time `json:"lasterror,omitzero"`
	LastUpdated time.Time `json:"lastupdated,omitzero"`
	UpSince     time.Time `json:"upsince,omitzero"`
}

// StoredResource é o registro durável de um resource
type StoredResource struct {
	Resource Descriptor      `json:"resource"`
	Health   *ResourceHealth `json:"health,omitempty"`
	Searsia  string          `json:"searsia"`
}
