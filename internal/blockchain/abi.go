package blockchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// escrowABI covers only the escrow functions this service calls.
const escrowABI = `[
  {"type":"function","name":"createBookingPayment","stateMutability":"payable","inputs":[
    {"name":"bookingId","type":"uint256"},{"name":"host","type":"address"},{"name":"tenant","type":"address"},
    {"name":"rentAmount","type":"uint256"},{"name":"depositAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"completeBooking","stateMutability":"nonpayable","inputs":[
    {"name":"bookingId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"processReclamationRefund","stateMutability":"nonpayable","inputs":[
    {"name":"bookingId","type":"uint256"},{"name":"recipient","type":"address"},
    {"name":"refundAmount","type":"uint256"},{"name":"penaltyAmount","type":"uint256"},
    {"name":"refundFromRent","type":"bool"}],"outputs":[]},
  {"type":"function","name":"processPartialRefund","stateMutability":"nonpayable","inputs":[
    {"name":"bookingId","type":"uint256"},{"name":"recipient","type":"address"},
    {"name":"refundAmount","type":"uint256"},{"name":"refundFromRent","type":"bool"}],"outputs":[]},
  {"type":"function","name":"setActiveReclamation","stateMutability":"nonpayable","inputs":[
    {"name":"bookingId","type":"uint256"},{"name":"active","type":"bool"}],"outputs":[]},
  {"type":"function","name":"bookingExistsCheck","stateMutability":"view","inputs":[
    {"name":"bookingId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getBooking","stateMutability":"view","inputs":[
    {"name":"bookingId","type":"uint256"}],"outputs":[
    {"name":"guest","type":"address"},{"name":"host","type":"address"},
    {"name":"rentAmount","type":"uint256"},{"name":"depositAmount","type":"uint256"}]},
  {"type":"function","name":"getBookingWithReclamation","stateMutability":"view","inputs":[
    {"name":"bookingId","type":"uint256"}],"outputs":[
    {"name":"guest","type":"address"},{"name":"host","type":"address"},
    {"name":"rentAmount","type":"uint256"},{"name":"depositAmount","type":"uint256"},
    {"name":"hasActiveReclamation","type":"bool"},{"name":"completed","type":"bool"}]},
  {"type":"function","name":"getReclamationRefund","stateMutability":"view","inputs":[
    {"name":"bookingId","type":"uint256"}],"outputs":[
    {"name":"recipient","type":"address"},{"name":"refundAmount","type":"uint256"},
    {"name":"penaltyAmount","type":"uint256"},{"name":"processed","type":"bool"}]},
  {"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getContractBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var escrow = mustParseABI(escrowABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("blockchain: invalid escrow ABI: " + err.Error())
	}
	return parsed
}
