package server

var StatusFor = statusFor
