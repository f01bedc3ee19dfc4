package ddt

// Form field names of the delivery-note master.
const (
	FieldNumber      = "Numero documento"
	FieldDate        = "Data documento"
	FieldDescription = "Descrizione"
	FieldQuantity    = "qta"
	FieldPackages    = "colli"
	FieldOutboundRef = "Ns DDT"
	FieldOutboundDay = "del"
	FieldTransport   = "Testo8"
	FieldPickup      = "Testo9"
	FieldPage        = "Pag"
)
