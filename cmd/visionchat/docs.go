package main

// General API documentation for swaggo. Run `make swagger-gen` to regenerate
// internal/apidocs.
//
// @title           visionchat API
// @version         1.0
// @description     Image conversation and account endpoints backed by a vision-language model.
//
// @contact.name   visionchat maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
