package wsfe

import (
	"encoding/xml"
)

// Namespace is the WSFEv1 service namespace; SOAPAction values are the
// namespace plus the operation name.
const Namespace = "http://ar.gov.afip.dif.FEV1/"

// requestEnvelope wraps one operation payload in a SOAP 1.1 envelope. The
// payload element declares the service namespace as its default, so every
// child lands in it without prefixes.
type requestEnvelope struct {
	XMLName xml.Name     `xml:"soap:Envelope"`
	NS      string       `xml:"xmlns:soap,attr"`
	Body    envelopeBody `xml:"soap:Body"`
}

type envelopeBody struct {
	Payload interface{}
}

func envelopeFor(payload interface{}) requestEnvelope {
	return requestEnvelope{
		NS:   "http://schemas.xmlsoap.org/soap/envelope/",
		Body: envelopeBody{Payload: payload},
	}
}

// FEAuthRequest carries the ticket bearer credentials. Authenticated WSFE
// calls present token and sign from the WSAA ticket, not a fresh CMS
// signature.
type FEAuthRequest struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  string `xml:"Cuit"`
}

// FECompUltimoAutorizadoRequest queries the last authorized voucher number
// for a point of sale / voucher type pair.
type FECompUltimoAutorizadoRequest struct {
	XMLName  xml.Name      `xml:"http://ar.gov.afip.dif.FEV1/ FECompUltimoAutorizado"`
	Auth     FEAuthRequest `xml:"Auth"`
	PtoVta   int           `xml:"PtoVta"`
	CbteTipo int           `xml:"CbteTipo"`
}

// FECAESolicitarRequest asks for a CAE over exactly one voucher.
type FECAESolicitarRequest struct {
	XMLName  xml.Name      `xml:"http://ar.gov.afip.dif.FEV1/ FECAESolicitar"`
	Auth     FEAuthRequest `xml:"Auth"`
	FeCAEReq FECAERequest  `xml:"FeCAEReq"`
}

// FECAERequest is the header/detail pair of one authorization request.
type FECAERequest struct {
	FeCabReq FECAECabRequest `xml:"FeCabReq"`
	FeDetReq FECAEDetList    `xml:"FeDetReq"`
}

// FECAECabRequest is the request header. CantReg is always 1 here.
type FECAECabRequest struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

// FECAEDetList wraps the detail entries.
type FECAEDetList struct {
	Details []FECAEDetRequest `xml:"FECAEDetRequest"`
}

// FECAEDetRequest is the per-voucher detail. Amounts are preformatted with
// two decimals; dates use yyyymmdd.
type FECAEDetRequest struct {
	Concepto   int    `xml:"Concepto"`
	DocTipo    int    `xml:"DocTipo"`
	DocNro     int64  `xml:"DocNro"`
	CbteDesde  int64  `xml:"CbteDesde"`
	CbteHasta  int64  `xml:"CbteHasta"`
	CbteFch    string `xml:"CbteFch"`
	ImpTotal   string `xml:"ImpTotal"`
	ImpTotConc string `xml:"ImpTotConc"`
	ImpNeto    string `xml:"ImpNeto"`
	ImpOpEx    string `xml:"ImpOpEx"`
	ImpTrib    string `xml:"ImpTrib"`
	ImpIVA     string `xml:"ImpIVA"`

	FchServDesde string `xml:"FchServDesde,omitempty"`
	FchServHasta string `xml:"FchServHasta,omitempty"`
	FchVtoPago   string `xml:"FchVtoPago,omitempty"`

	MonId    string `xml:"MonId"`
	MonCotiz string `xml:"MonCotiz"`

	CondicionIVAReceptorId int `xml:"CondicionIVAReceptorId,omitempty"`

	CbtesAsoc *CbtesAsocList `xml:"CbtesAsoc,omitempty"`
	Iva       *AlicIvaList   `xml:"Iva,omitempty"`
}

// CbtesAsocList references original vouchers from credit/debit notes.
type CbtesAsocList struct {
	Entries []CbteAsoc `xml:"CbteAsoc"`
}

// CbteAsoc is one associated voucher reference.
type CbteAsoc struct {
	Tipo   int   `xml:"Tipo"`
	PtoVta int   `xml:"PtoVta"`
	Nro    int64 `xml:"Nro"`
}

// AlicIvaList is the VAT breakdown by rate.
type AlicIvaList struct {
	Entries []AlicIva `xml:"AlicIva"`
}

// AlicIva is one VAT rate line. Id is the authority's rate identifier.
type AlicIva struct {
	ID      int    `xml:"Id"`
	BaseImp string `xml:"BaseImp"`
	Importe string `xml:"Importe"`
}

// VAT rate identifiers (FEParamGetTiposIva).
const (
	RateID21   = 5
	RateID10_5 = 4
	RateID27   = 6
)

// feErrors is the structured error block WSFE responses carry.
type feErrors struct {
	Err []feErr `xml:"Err"`
}

type feErr struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

// lastAuthorizedResponse decodes the FECompUltimoAutorizado reply. Tags
// match by local name, so response namespace prefixes never matter.
type lastAuthorizedResponse struct {
	Result struct {
		PtoVta   int      `xml:"PtoVta"`
		CbteTipo int      `xml:"CbteTipo"`
		CbteNro  int64    `xml:"CbteNro"`
		Errors   feErrors `xml:"Errors"`
	} `xml:"Body>FECompUltimoAutorizadoResponse>FECompUltimoAutorizadoResult"`
}

// caeResponse decodes the FECAESolicitar reply.
type caeResponse struct {
	Result struct {
		FeCabResp struct {
			PtoVta    int    `xml:"PtoVta"`
			CbteTipo  int    `xml:"CbteTipo"`
			Resultado string `xml:"Resultado"`
		} `xml:"FeCabResp"`
		FeDetResp struct {
			Details []caeDetail `xml:"FECAEDetResponse"`
		} `xml:"FeDetResp"`
		Errors feErrors `xml:"Errors"`
	} `xml:"Body>FECAESolicitarResponse>FECAESolicitarResult"`
}

type caeDetail struct {
	Concepto      int    `xml:"Concepto"`
	DocTipo       int    `xml:"DocTipo"`
	DocNro        int64  `xml:"DocNro"`
	CbteDesde     int64  `xml:"CbteDesde"`
	CbteHasta     int64  `xml:"CbteHasta"`
	CbteFch       string `xml:"CbteFch"`
	Resultado     string `xml:"Resultado"`
	CAE           string `xml:"CAE"`
	CAEFchVto     string `xml:"CAEFchVto"`
	Observaciones struct {
		Obs []feObs `xml:"Obs"`
	} `xml:"Observaciones"`
}

type feObs struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}
