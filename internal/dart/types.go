package dart

import (
	"errors"
	"fmt"
	"strings"
)

// OpenDART envelope status codes.
const (
	StatusOK     = "000"
	StatusNoData = "013"
)

const detailURLPrefix = "https://dart.fss.or.kr/dsaf001/main.do?rcpNo="

// Disclosure is one filed report from the listing. Only ID is persisted.
type Disclosure struct {
	ID          string // rcp_no
	Title       string // report_nm
	CorpCode    string
	CorpName    string
	ReceiptDate string // rcept_dt, YYYYMMDD
	Filer       string // flr_nm
}

// DetailURL is the public viewer page for a receipt number.
func DetailURL(rcpNo string) string { return detailURLPrefix + rcpNo }

func (d Disclosure) URL() string { return DetailURL(d.ID) }

type listResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	List    []listItem `json:"list"`
}

type listItem struct {
	CorpCode string `json:"corp_code"`
	CorpName string `json:"corp_name"`
	RcpNo    string `json:"rcp_no"`
	ReportNm string `json:"report_nm"`
	FlrNm    string `json:"flr_nm"`
	RceptDt  string `json:"rcept_dt"`
}

func (it listItem) disclosure() Disclosure {
	return Disclosure{
		ID:          strings.TrimSpace(it.RcpNo),
		Title:       strings.TrimSpace(it.ReportNm),
		CorpCode:    it.CorpCode,
		CorpName:    it.CorpName,
		ReceiptDate: it.RceptDt,
		Filer:       it.FlrNm,
	}
}

// ErrorKind classifies a SourceError.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http"
	KindDecode    ErrorKind = "decode"
	KindStatus    ErrorKind = "status"
)

// SourceError is any failure to get a usable answer from the listing API.
// Raw holds the response body (when there was one) for diagnostics.
type SourceError struct {
	Kind       ErrorKind
	HTTPStatus int
	Status     string
	Message    string
	Raw        string
	Err        error
}

func (e *SourceError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("dart: api status %s: %s", e.Status, e.Message)
	case KindHTTP:
		return fmt.Sprintf("dart: unexpected http status %d", e.HTTPStatus)
	default:
		if e.Err != nil {
			return fmt.Sprintf("dart: %s: %v", e.Kind, e.Err)
		}
		return "dart: " + string(e.Kind)
	}
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsSourceError reports whether err is (or wraps) a *SourceError.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}
