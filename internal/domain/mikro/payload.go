package mikro

import "encoding/json"

// LoginPayload is the body of the APILogin call.
type LoginPayload struct {
	APIKey      string `json:"ApiKey" validate:"required"`
	CompanyCode string `json:"FirmaKodu" validate:"required"`
	Year        string `json:"CalismaYili" validate:"required"`
	UserCode    string `json:"KullaniciKodu" validate:"required"`
	Password    string `json:"Sifre" validate:"required"`
	CompanyNo   int    `json:"FirmaNo"`
	BranchNo    int    `json:"SubeNo"`
}

// OrderSavePayload is the body of the SiparisKaydetV2 call.
type OrderSavePayload struct {
	Mikro OrderSaveBody `json:"Mikro"`
}

// OrderSaveBody carries the credential block and the document groups.
type OrderSaveBody struct {
	CompanyCode string     `json:"FirmaKodu" validate:"required"`
	Year        string     `json:"CalismaYili" validate:"required"`
	UserCode    string     `json:"KullaniciKodu" validate:"required"`
	Password    string     `json:"Sifre" validate:"required"`
	APIKey      string     `json:"ApiKey" validate:"required"`
	Documents   []Document `json:"evraklar" validate:"required,min=1,dive"`
}

// Document is one submittable unit ("evrak").
type Document struct {
	Descriptions []Description `json:"evrak_aciklamalari" validate:"required,min=1,dive"`
	Lines        []LineRecord  `json:"satirlar" validate:"required,min=1"`
}

// Description is a free-text entry of a document.
type Description struct {
	Text string `json:"aciklama" validate:"required"`
}

// UserTableEntry is the per-line user table block; always sent with an empty text.
type UserTableEntry struct {
	Text string `json:"aciklama"`
}

// LineRecord is one order line ("satir") inside a document.
type LineRecord struct {
	Date           string           `json:"sip_tarih"`
	Series         string           `json:"seriler"`
	UnitPointer    int              `json:"sip_birim_pntr"`
	Kind           int              `json:"sip_cins"`
	DocumentSeries string           `json:"sip_evrakno_seri"`
	CustomerCode   string           `json:"sip_musteri_kod"`
	ProductCode    string           `json:"sip_stok_kod"`
	UnitPrice      json.Number      `json:"sip_b_fiyat"`
	Quantity       int64            `json:"sip_miktar"`
	Amount         json.Number      `json:"sip_tutar"`
	TaxPointer     int              `json:"sip_vergi_pntr"`
	WarehouseNo    int              `json:"sip_depono"`
	TaxExempt      bool             `json:"sip_vergisiz_fl"`
	CostCenter     string           `json:"sip_stok_sormerk"`
	UserTable      []UserTableEntry `json:"user_tablo"`
}

// LineCount returns the number of line records over all documents.
func (p *OrderSavePayload) LineCount() int {
	n := 0
	for _, d := range p.Mikro.Documents {
		n += len(d.Lines)
	}
	return n
}
