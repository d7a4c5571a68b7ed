// Package mikro holds the wire shapes of the Mikro ERP API and the
// daily credential the API expects.
//
// Go field names are English; the JSON tags carry the Turkish names the
// remote schema uses (evrak = document, satir = line, aciklama = description).
package mikro
